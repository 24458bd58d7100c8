package app

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/apps/ingestion/internal/adapter/embedding"
	"docflow/apps/ingestion/internal/config"
)

type nopStore struct{}

func (nopStore) Size(ctx context.Context, bucket, key string) (int64, error) { return 0, nil }
func (nopStore) Get(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error) {
	return nil, nil
}
func (nopStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(topic string, body []byte) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		NSQChannel:            "ingestion-worker",
		NSQMaxInFlight:        8,
		NSQMsgTimeout:         time.Minute,
		WorkerConcurrency:     4,
		MaxAttempts:           5,
		JobTimeout:            time.Minute,
		RequeueDelay:          15 * time.Second,
		MaxRequeueDelay:       5 * time.Minute,
		MaxBackoff:            2 * time.Minute,
		MaxFileSizeMB:         10,
		MaxDecompressedSizeMB: 50,
		ExtractionTimeout:     time.Minute,
		MaxArchiveDepth:       3,
		ChunksKeyPrefix:       "chunks",
		EmbedderBatchSize:     16,
	}
}

func TestNew(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	registry := embedding.NewRegistry(embedding.Options{})

	app, err := New(testConfig(), db, nopStore{}, registry, nopPublisher{}, logger)
	require.NoError(t, err)
	assert.NotNil(t, app.Handler)
	assert.NotNil(t, app.Processor)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	// Failed jobs route is backed by the database
	mock.ExpectQuery("SELECT .* FROM failed_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "handler", "status", "payload", "error", "attempts", "retries", "created_at"}))

	req = httptest.NewRequest("GET", "/jobs/failed", nil)
	w = httptest.NewRecorder()
	app.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	req = httptest.NewRequest("GET", "/jobs/failed/count", nil)
	w = httptest.NewRecorder()
	app.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"count":3}}`, w.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_WithoutFailureStore(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	app, err := New(testConfig(), nil, nopStore{}, nil, nopPublisher{}, logger)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/jobs/failed", nil)
	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNew_RequiresStoreAndPublisher(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	_, err := New(testConfig(), nil, nil, nil, nopPublisher{}, logger)
	assert.Error(t, err)

	_, err = New(testConfig(), nil, nopStore{}, nil, nil, logger)
	assert.Error(t, err)
}

func TestNSQConfig(t *testing.T) {
	cfg := testConfig()
	cfg.NSQMaxInFlight = 2
	cfg.WorkerConcurrency = 6

	c := NSQConfig(cfg)
	require.NoError(t, c.Validate())
	assert.Equal(t, 6, c.MaxInFlight, "in-flight must cover every concurrent handler")
	assert.Equal(t, uint16(0), c.MaxAttempts)
	assert.Equal(t, 15*time.Second, c.DefaultRequeueDelay)
	assert.Equal(t, 5*time.Minute, c.MaxRequeueDelay)
	assert.Equal(t, 2*time.Minute, c.MaxBackoffDuration)
	assert.Equal(t, time.Minute, c.MsgTimeout)
}

func TestServe_NSQUnavailable(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := testConfig()
	cfg.NSQDHost = "127.0.0.1:1"

	app, err := New(cfg, nil, nopStore{}, nil, nopPublisher{}, logger)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	err = app.Serve(context.Background(), ln)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nsq connect error")

	// The listener was released.
	_, err = net.Dial("tcp", ln.Addr().String())
	assert.Error(t, err)
}
