package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	name   string
	mu     sync.Mutex
	events []WorkflowEvent
}

func (r *recordingObserver) OnEvent(ctx context.Context, event WorkflowEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingObserver) GetObserverName() string { return r.name }

type panickingObserver struct{}

func (panickingObserver) OnEvent(ctx context.Context, event WorkflowEvent) { panic("boom") }

func (panickingObserver) GetObserverName() string { return "panicking" }

func TestEventPublisher_OrderAndUnsubscribe(t *testing.T) {
	pub := NewEventPublisher()
	rec := &recordingObserver{name: "rec"}
	pub.Subscribe(panickingObserver{})
	pub.Subscribe(rec)

	for i := uint64(1); i <= 5; i++ {
		pub.NotifyObservers(context.Background(), WorkflowEvent{EventType: Transition, Generation: i})
	}

	require.Len(t, rec.events, 5)
	for i, ev := range rec.events {
		assert.Equal(t, uint64(i+1), ev.Generation)
	}

	pub.Unsubscribe(rec)
	pub.NotifyObservers(context.Background(), WorkflowEvent{EventType: Transition})
	assert.Len(t, rec.events, 5)
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetricsObserver()
	ctx := context.Background()

	m.OnEvent(ctx, WorkflowEvent{EventType: AnalysisStarted, From: "uploading", To: "analyzing"})
	m.OnEvent(ctx, WorkflowEvent{EventType: AnalysisCompleted, From: "analyzing", To: "results_ready", Duration: 2 * time.Second})
	m.OnEvent(ctx, WorkflowEvent{EventType: AnalysisStarted, From: "capturing", To: "analyzing"})
	m.OnEvent(ctx, WorkflowEvent{EventType: AnalysisFailed, From: "analyzing", To: "failed", Duration: 4 * time.Second})
	m.OnEvent(ctx, WorkflowEvent{EventType: StaleDiscarded})
	m.OnEvent(ctx, WorkflowEvent{EventType: CameraFailed})

	got := m.GetMetrics()
	assert.Equal(t, int64(4), got["transitions"])
	assert.Equal(t, int64(2), got["submissions"])
	assert.Equal(t, int64(1), got["successful_analyses"])
	assert.Equal(t, int64(1), got["failed_analyses"])
	assert.Equal(t, int64(1), got["stale_discards"])
	assert.Equal(t, int64(1), got["camera_failures"])
	assert.Equal(t, "3s", got["avg_processing_time"])
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	NewLoggingObserver(log).OnEvent(context.Background(), WorkflowEvent{
		EventType:  AnalysisFailed,
		SessionID:  "s-1",
		Generation: 7,
		From:       "analyzing",
		To:         "failed",
		ErrorType:  "analysis",
		Message:    "model unavailable",
	})

	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "Analysis failed", entry["msg"])
	assert.Equal(t, "model unavailable", entry["message"])
	assert.Equal(t, "failed", entry["to"])
}
