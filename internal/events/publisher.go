package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// EventRunCompleted is the type of every run event
const EventRunCompleted = "run.completed"

// RunEvent is the payload published for a completed run
type RunEvent struct {
	Type    string                   `json:"type"`
	Summary contracts.RunSummary     `json:"summary"`
	Run     *contracts.EvaluationRun `json:"run"`
}

// NewRunEvent builds the event of a run
func NewRunEvent(run *contracts.EvaluationRun) RunEvent {
	return RunEvent{Type: EventRunCompleted, Summary: run.Summary(), Run: run}
}

// MessagePublisher is implemented by pkg/kafka.Producer
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value interface{}, headers map[string]string) error
}

// KafkaPublisher streams completed runs keyed by context id, so the runs of one
// context stay ordered on one partition.
type KafkaPublisher struct {
	producer MessagePublisher
	timeout  time.Duration
	logger   *logger.Logger
}

var _ contracts.RunPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a run publisher on producer
func NewKafkaPublisher(producer MessagePublisher, timeout time.Duration, log *logger.Logger) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaPublisher{producer: producer, timeout: timeout, logger: log.Component("events")}
}

// PublishRun publishes one run event
func (p *KafkaPublisher) PublishRun(ctx context.Context, run *contracts.EvaluationRun) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	headers := map[string]string{
		"type":       EventRunCompleted,
		"run_id":     run.RunID,
		"context_id": run.Scope.ContextID,
	}
	if err := p.producer.Publish(ctx, run.Scope.ContextID, NewRunEvent(run), headers); err != nil {
		return fmt.Errorf("publish run %s: %w", run.RunID, err)
	}

	p.logger.WithFields(map[string]interface{}{
		"run_id":     run.RunID,
		"context_id": run.Scope.ContextID,
	}).Debug("Run event published")
	return nil
}

// FanOut delivers a run to every publisher. One failing publisher does not stop the others.
type FanOut []contracts.RunPublisher

var _ contracts.RunPublisher = FanOut(nil)

// PublishRun publishes to all and joins the errors
func (f FanOut) PublishRun(ctx context.Context, run *contracts.EvaluationRun) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishRun(ctx, run.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
