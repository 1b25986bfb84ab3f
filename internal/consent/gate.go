package consent

import (
	"sync"

	apperrors "go-tonesense/internal/errors"
)

// Decision is the user's answer to one consent prompt
type Decision struct {
	Accepted bool `json:"accepted"`
}

// ErrNoPrompt is returned when a decision arrives with no open prompt
var ErrNoPrompt = apperrors.NewPreconditionError("no consent prompt is open", nil)

// Gate is a one-shot camera consent prompt. It has no default answer and
// keeps nothing once a decision is consumed.
type Gate struct {
	mu      sync.Mutex
	pending bool
}

// NewGate creates a gate with no open prompt
func NewGate() *Gate {
	return &Gate{}
}

// Prompt opens a prompt. Opening an already open prompt is a no-op.
func (g *Gate) Prompt() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = true
}

// Pending reports whether a prompt is waiting for a decision
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Decide consumes the open prompt and returns the decision
func (g *Gate) Decide(accepted bool) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.pending {
		return Decision{}, ErrNoPrompt
	}
	g.pending = false
	return Decision{Accepted: accepted}, nil
}

// Cancel closes any open prompt without a decision
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = false
}
