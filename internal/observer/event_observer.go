package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/defect-inspector-go/internal/logger"
)

// InspectionEvent represents one step of a detection request
type InspectionEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	UploadID       string                 `json:"upload_id,omitempty"`
	Filename       string                 `json:"filename,omitempty"`
	AnnotatedURL   string                 `json:"annotated_url,omitempty"`
	Defects        int                    `json:"defects"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of inspection event
type EventType string

const (
	// UploadSaved when the client's bytes are on disk
	UploadSaved EventType = "upload_saved"
	// InspectionStarted when inference is submitted
	InspectionStarted EventType = "inspection_started"
	// InspectionCompleted when the annotated image is written
	InspectionCompleted EventType = "inspection_completed"
	// InspectionFailed when inference or annotation fails
	InspectionFailed EventType = "inspection_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event InspectionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event InspectionEvent)
}

// LoggingObserver logs inspection events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles inspection events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event InspectionEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"upload_id":       event.UploadID,
		"filename":        event.Filename,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}

	if event.AnnotatedURL != "" {
		fields["annotated_url"] = event.AnnotatedURL
		fields["defects"] = event.Defects
	}

	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}

	for k, v := range event.Metadata {
		fields[k] = v
	}

	switch event.EventType {
	case UploadSaved:
		o.logger.WithFields(fields).Debug("Upload saved")
	case InspectionStarted:
		o.logger.WithFields(fields).Info("Inspection started")
	case InspectionCompleted:
		o.logger.WithFields(fields).Info("Inspection completed")
	case InspectionFailed:
		o.logger.WithFields(fields).Error("Inspection failed")
	default:
		o.logger.WithFields(fields).Info("Inspection event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects request counters from inspection events
type MetricsObserver struct {
	mu                    sync.RWMutex
	totalInspections      int64
	successfulInspections int64
	failedInspections     int64
	totalDefects          int64
	totalProcessingTime   time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles inspection events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event InspectionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case InspectionStarted:
		o.totalInspections++
	case InspectionCompleted:
		o.successfulInspections++
		o.totalDefects += int64(event.Defects)
		o.totalProcessingTime += event.ProcessingTime
	case InspectionFailed:
		o.failedInspections++
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

	avgProcessingTime := time.Duration(0)
	if o.successfulInspections > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.successfulInspections)
	}

	return map[string]interface{}{
		"total_inspections":      o.totalInspections,
		"successful_inspections": o.successfulInspections,
		"failed_inspections":     o.failedInspections,
		"total_defects":          o.totalDefects,
		"total_processing_time":  o.totalProcessingTime.String(),
		"avg_processing_time":    avgProcessingTime.String(),
	}
}

// observerQueue bounds events waiting on one slow observer; publishers block beyond it.
const observerQueue = 256

type delivery struct {
	ctx   context.Context
	event InspectionEvent
}

// subscription delivers events to one observer in publish order
type subscription struct {
	observer Observer
	queue    chan delivery
}

func (s *subscription) run() {
	for d := range s.queue {
		s.deliver(d)
	}
}

func (s *subscription) deliver(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			logger.Component("event_publisher").
				WithField("observer", s.observer.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	s.observer.OnEvent(d.ctx, d.event)
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu            sync.RWMutex
	subscriptions []*subscription
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() Subject {
	return &EventPublisher{
		subscriptions: make([]*subscription, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	sub := &subscription{observer: observer, queue: make(chan delivery, observerQueue)}
	go sub.run()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions = append(p.subscriptions, sub)
}

// Unsubscribe removes an observer; events already queued for it are still delivered
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, sub := range p.subscriptions {
		if sub.observer.GetObserverName() == observer.GetObserverName() {
			p.subscriptions = append(p.subscriptions[:i], p.subscriptions[i+1:]...)
			close(sub.queue)
			break
		}
	}
}

// NotifyObservers queues the event for every observer. Each observer sees events
// in the order they were published.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event InspectionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, sub := range p.subscriptions {
		sub.queue <- delivery{ctx: ctx, event: event}
	}
}
