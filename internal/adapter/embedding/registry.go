// Package embedding resolves per-job embedder configurations into shared,
// rate-limited embedder clients.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"docflow/apps/ingestion/internal/adapter/gemini"
	"docflow/apps/ingestion/internal/adapter/httpembed"
)

const (
	ProviderGemini = "gemini"
	ProviderHTTP   = "http"
)

var ErrInvalidConfig = errors.New("invalid embedder config")

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config is the embedder reference carried by a job.
type Config struct {
	Provider       string `json:"provider"`
	Endpoint       string `json:"endpoint,omitempty"`
	Model          string `json:"model,omitempty"`
	CredentialsRef string `json:"credentials_ref,omitempty"`
}

func (c Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
	case ProviderHTTP:
		if c.Endpoint == "" {
			return fmt.Errorf("%w: http provider requires endpoint", ErrInvalidConfig)
		}
		if c.Model == "" {
			return fmt.Errorf("%w: http provider requires model", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	return nil
}

type Options struct {
	// GeminiAPIKey is used when a gemini config has no credentials_ref.
	GeminiAPIKey string
	// RateLimit is the shared request rate across all embedders; <= 0 disables it.
	RateLimit     float64
	Timeout       time.Duration
	GeminiOptions []option.ClientOption
	HTTPClient    *http.Client
	LookupEnv     func(string) (string, bool)
}

type Registry struct {
	opts    Options
	limiter *rate.Limiter

	mu      sync.RWMutex
	clients map[Config]Embedder
	closers []io.Closer
}

func NewRegistry(opts Options) *Registry {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	return &Registry{
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		clients: make(map[Config]Embedder),
	}
}

// Get returns the cached embedder for cfg, creating it on first use.
func (r *Registry) Get(ctx context.Context, cfg Config) (Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	e, ok := r.clients[cfg]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double check
	if e, ok := r.clients[cfg]; ok {
		return e, nil
	}

	inner, closer, err := r.build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e = &limited{next: inner, limiter: r.limiter, timeout: r.opts.Timeout}
	r.clients[cfg] = e
	if closer != nil {
		r.closers = append(r.closers, closer)
	}
	slog.InfoContext(ctx, "embedder created", "provider", cfg.Provider, "model", cfg.Model)
	return e, nil
}

func (r *Registry) build(ctx context.Context, cfg Config) (Embedder, io.Closer, error) {
	key, err := r.credential(cfg.CredentialsRef)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Provider {
	case ProviderGemini:
		if key == "" {
			key = r.opts.GeminiAPIKey
		}
		if key == "" {
			return nil, nil, fmt.Errorf("%w: gemini api key not configured", ErrInvalidConfig)
		}
		opts := append([]option.ClientOption{}, r.opts.GeminiOptions...)
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		}
		g, err := gemini.NewEmbedder(ctx, key, cfg.Model, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create gemini client: %w", err)
		}
		return g, g, nil
	default:
		var hopts []httpembed.Option
		if key != "" {
			hopts = append(hopts, httpembed.WithAPIKey(key))
		}
		if r.opts.HTTPClient != nil {
			hopts = append(hopts, httpembed.WithHTTPClient(r.opts.HTTPClient))
		}
		return httpembed.New(cfg.Endpoint, cfg.Model, hopts...), nil, nil
	}
}

// credential resolves "env:NAME" or a bare variable name. Secrets never
// travel inside job payloads.
func (r *Registry) credential(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	name := strings.TrimPrefix(ref, "env:")
	v, ok := r.opts.LookupEnv(name)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: credential %s not set", ErrInvalidConfig, name)
	}
	return v, nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	r.clients = make(map[Config]Embedder)
	return errors.Join(errs...)
}

// limited shares one rate limiter across every embedder and bounds each call.
type limited struct {
	next    Embedder
	limiter *rate.Limiter
	timeout time.Duration
}

func (l *limited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.next.EmbedBatch(ctx, texts)
}
