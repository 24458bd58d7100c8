package worker_test

import (
	"context"
	"sync"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/mock"

	"docflow/apps/ingestion/features/job"
	"docflow/apps/ingestion/internal/adapter/embedding"
)

// Mocks

type MockStore struct{ mock.Mock }

func (m *MockStore) Size(ctx context.Context, bucket, key string) (int64, error) {
	args := m.Called(ctx, bucket, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error) {
	args := m.Called(ctx, bucket, key, maxBytes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	args := m.Called(ctx, bucket, key, data, contentType)
	return args.Error(0)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

type MockJobRepo struct{ mock.Mock }

func (m *MockJobRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

type MockEmbedders struct{ mock.Mock }

func (m *MockEmbedders) Get(ctx context.Context, cfg embedding.Config) (embedding.Embedder, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(embedding.Embedder), args.Error(1)
}

// bagEmbedder maps each text to a two-dimensional vector by counting
// occurrences of two marker words.
type bagEmbedder struct {
	a, b string
	err  error
}

func (e *bagEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(countWord(t, e.a)) + 0.01, float32(countWord(t, e.b)) + 0.01}
	}
	return out, nil
}

// fakeDelegate records the responses go-nsq would send to nsqd.
type fakeDelegate struct {
	mu       sync.Mutex
	finished int
	requeued int
	backoff  bool
	touched  int
}

func (d *fakeDelegate) OnFinish(m *nsq.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finished++
}

func (d *fakeDelegate) OnRequeue(m *nsq.Message, delay time.Duration, backoff bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requeued++
	d.backoff = backoff
}

func (d *fakeDelegate) OnTouch(m *nsq.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touched++
}
