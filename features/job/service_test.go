package job

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/apps/ingestion/internal/config"
)

type stubPublisher struct {
	sleep     time.Duration
	LastTopic string
	LastBody  []byte
}

func (m *stubPublisher) Publish(topic string, body []byte) error {
	m.LastTopic = topic
	m.LastBody = body
	time.Sleep(m.sleep)
	return nil
}

type stubRepo struct {
	Repository
	payload []byte
	deleted []string
}

func (m *stubRepo) Get(ctx context.Context, id string) (*Job, error) {
	return &Job{ID: id, JobID: "job-" + id, Payload: m.payload}, nil
}

func (m *stubRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *stubRepo) Count(ctx context.Context) (int, error) { return 10, nil }

func (m *stubRepo) List(ctx context.Context) ([]Job, error) {
	return []Job{{ID: "1"}, {ID: "2"}}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestRetry_PublishesToTaskTopic(t *testing.T) {
	repo := &stubRepo{payload: []byte(`{"job_id":"abc"}`)}
	pub := &stubPublisher{}
	service := NewService(repo, pub, testLogger())

	require.NoError(t, service.Retry(context.Background(), "1"))
	assert.Equal(t, config.TopicIngestDocument, pub.LastTopic)
	assert.JSONEq(t, `{"job_id":"abc"}`, string(pub.LastBody))
	assert.Equal(t, []string{"1"}, repo.deleted)
}

func TestRetry_Timeout(t *testing.T) {
	repo := &stubRepo{payload: []byte("{}")}
	pub := &stubPublisher{sleep: 200 * time.Millisecond}
	service := NewService(repo, pub, testLogger())
	service.publishTimeout = 20 * time.Millisecond

	err := service.Retry(context.Background(), "1")
	assert.ErrorIs(t, err, ErrPublishTimeout)
	assert.Empty(t, repo.deleted)
}

func TestService_CountAndList(t *testing.T) {
	service := NewService(&stubRepo{}, nil, testLogger())

	count, err := service.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	jobs, err := service.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Equal(t, "1", jobs[0].ID)
}
