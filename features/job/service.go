package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docflow/apps/ingestion/internal/config"
)

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	logger         *slog.Logger
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, pub: pub, logger: logger, publishTimeout: 5 * time.Second}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Retry republishes the stored payload to the task topic and removes the
// record. The redelivered task starts again at attempt one.
func (s *Service) Retry(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	// go-nsq Publish has no context; bound it ourselves.
	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicIngestDocument, job.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(s.publishTimeout):
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "failed job republished", "id", id, "job_id", job.JobID)
	return s.repo.Delete(ctx, id)
}
