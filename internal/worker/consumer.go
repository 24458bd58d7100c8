package worker

import (
	"context"
	"errors"
	"time"

	"github.com/nsqio/go-nsq"
)

// Consumer adapts Processor to go-nsq. Returning nil finishes the message,
// returning an error requeues it with backoff.
type Consumer struct {
	ctx           context.Context
	processor     *Processor
	touchInterval time.Duration
}

// NewConsumer processes messages under ctx; cancelling it hands in-flight
// messages back to nsqd. touchInterval should stay below the nsqd message
// timeout so long extractions are not redelivered elsewhere.
func NewConsumer(ctx context.Context, p *Processor, touchInterval time.Duration) *Consumer {
	return &Consumer{ctx: ctx, processor: p, touchInterval: touchInterval}
}

func (c *Consumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	stop := c.keepAlive(m)
	defer stop()

	err := c.processor.Process(c.ctx, m.Body, m.Attempts)
	if errors.Is(err, ErrInterrupted) {
		// No backoff for shutdown. nsqd still counts the redelivery as an
		// attempt.
		m.DisableAutoResponse()
		m.RequeueWithoutBackoff(0)
		return nil
	}
	return err
}

func (c *Consumer) keepAlive(m *nsq.Message) func() {
	if c.touchInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		t := time.NewTicker(c.touchInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				m.Touch()
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
