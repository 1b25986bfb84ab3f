package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// WorkflowEvent describes one state change of the capture-to-result workflow
type WorkflowEvent struct {
	EventType  EventType     `json:"event_type"`
	Timestamp  time.Time     `json:"timestamp"`
	SessionID  string        `json:"session_id"`
	Generation uint64        `json:"generation"`
	From       string        `json:"from,omitempty"`
	To         string        `json:"to,omitempty"`
	ErrorType  string        `json:"error_type,omitempty"`
	Message    string        `json:"message,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// EventType represents the type of workflow event
type EventType string

const (
	// Transition is a mode change with no analysis attached
	Transition EventType = "transition"
	// AnalysisStarted when a submission enters Analyzing
	AnalysisStarted EventType = "analysis_started"
	// AnalysisCompleted when a result is stored
	AnalysisCompleted EventType = "analysis_completed"
	// AnalysisFailed when a submission ends in Failed
	AnalysisFailed EventType = "analysis_failed"
	// StaleDiscarded when an outcome arrives after the session moved on
	StaleDiscarded EventType = "stale_discarded"
	// CameraReady when a stream delivered its first frame
	CameraReady EventType = "camera_ready"
	// CameraFailed when acquisition was denied or no device exists
	CameraFailed EventType = "camera_failed"
	// CameraSwitched when the facing mode is flipped
	CameraSwitched EventType = "camera_switched"
	// FrameHints when quality checks produced advice for a capture
	FrameHints EventType = "frame_hints"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event WorkflowEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event WorkflowEvent)
}

// LoggingObserver logs workflow events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles workflow events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event WorkflowEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"session_id": event.SessionID,
		"generation": event.Generation,
	}
	if event.From != "" || event.To != "" {
		fields["from"] = event.From
		fields["to"] = event.To
	}
	if event.ErrorType != "" {
		fields["error_type"] = event.ErrorType
	}
	if event.Message != "" {
		fields["message"] = event.Message
	}
	if event.Duration > 0 {
		fields["duration"] = event.Duration
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case AnalysisStarted:
		entry.Info("Analysis submitted")
	case AnalysisCompleted:
		entry.Info("Analysis completed")
	case AnalysisFailed:
		entry.Error("Analysis failed")
	case CameraFailed:
		entry.Warn("Camera unavailable")
	case FrameHints:
		entry.Info("Capture quality hints")
	case StaleDiscarded, CameraReady, CameraSwitched:
		entry.Debug("Workflow event")
	default:
		entry.Info("Workflow transition")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects totals from workflow events
type MetricsObserver struct {
	mu                  sync.RWMutex
	transitions         int64
	submissions         int64
	successfulAnalyses  int64
	failedAnalyses      int64
	staleDiscards       int64
	cameraFailures      int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles workflow events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event WorkflowEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if event.To != "" {
		o.transitions++
	}

	switch event.EventType {
	case AnalysisStarted:
		o.submissions++
	case AnalysisCompleted:
		o.successfulAnalyses++
		o.totalProcessingTime += event.Duration
	case AnalysisFailed:
		o.failedAnalyses++
		o.totalProcessingTime += event.Duration
	case StaleDiscarded:
		o.staleDiscards++
	case CameraFailed:
		o.cameraFailures++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	resolved := o.successfulAnalyses + o.failedAnalyses
	avgProcessingTime := time.Duration(0)
	if resolved > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(resolved)
	}

	return map[string]interface{}{
		"transitions":           o.transitions,
		"submissions":           o.submissions,
		"successful_analyses":   o.successfulAnalyses,
		"failed_analyses":       o.failedAnalyses,
		"stale_discards":        o.staleDiscards,
		"camera_failures":       o.cameraFailures,
		"total_processing_time": o.totalProcessingTime.String(),
		"avg_processing_time":   avgProcessingTime.String(),
	}
}

// EventPublisher implements the Subject interface. Observers are called
// in subscription order on the publishing goroutine, so events arrive in
// the order they were published; observers must not block.
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event
func (p *EventPublisher) NotifyObservers(ctx context.Context, event WorkflowEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event WorkflowEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the application
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
