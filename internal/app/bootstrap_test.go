package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/apps/ingestion/internal/app"
	"docflow/apps/ingestion/internal/config"
)

type statefulPinger struct {
	callCount int
	failUntil int
}

func (p *statefulPinger) PingContext(ctx context.Context) error {
	p.callCount++
	if p.callCount <= p.failUntil {
		return errors.New("connection refused")
	}
	return nil
}

func TestPingWithRetry_Success(t *testing.T) {
	p := &statefulPinger{}
	err := app.PingWithRetry(context.Background(), p, 1, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 1, p.callCount)
}

func TestPingWithRetry_Retries(t *testing.T) {
	p := &statefulPinger{failUntil: 2}
	err := app.PingWithRetry(context.Background(), p, 5, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 3, p.callCount)
}

func TestPingWithRetry_Fail(t *testing.T) {
	p := &statefulPinger{failUntil: 100}
	err := app.PingWithRetry(context.Background(), p, 3, time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, 3, p.callCount)
}

func TestPingWithRetry_AtLeastOnce(t *testing.T) {
	p := &statefulPinger{}
	err := app.PingWithRetry(context.Background(), p, 0, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 1, p.callCount)
}

func TestPingWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &statefulPinger{failUntil: 100}
	err := app.PingWithRetry(ctx, p, 10, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.callCount)
}

func TestBootstrap_ConfigurationError(t *testing.T) {
	cfg := &config.Config{
		DBHost:             "invalid-host",
		EnableFailureStore: true,
	}
	deps, err := app.Bootstrap(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, deps)
}

func TestBootstrap_WithoutFailureStore(t *testing.T) {
	cfg := &config.Config{
		NSQDHost:    "127.0.0.1:4150",
		S3Region:    "us-east-1",
		S3Endpoint:  "http://127.0.0.1:9000",
		S3AccessKey: "key",
		S3SecretKey: "secret",
	}
	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer deps.Close()

	assert.Nil(t, deps.DB)
	assert.NotNil(t, deps.Store)
	assert.NotNil(t, deps.NSQProducer)
	assert.NotNil(t, deps.Embedders)
}

func TestDependencies_CloseNil(t *testing.T) {
	var deps *app.Dependencies
	assert.NotPanics(t, deps.Close)
	assert.NotPanics(t, (&app.Dependencies{}).Close)
}
