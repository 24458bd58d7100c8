package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"docflow/apps/ingestion/internal/adapter/gemini"
)

// fakeGemini answers batchEmbedContents with one vector per request, the
// first component carrying the request position.
func fakeGemini(t *testing.T, calls *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":batchEmbedContents") {
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
			return
		}
		calls.Add(1)
		var req struct {
			Requests []json.RawMessage `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		embs := make([]map[string]any, len(req.Requests))
		for i := range req.Requests {
			embs[i] = map[string]any{"values": []float32{float32(i), 0.5}}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"embeddings": embs})
	}))
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	var calls atomic.Int32
	ts := fakeGemini(t, &calls)
	defer ts.Close()

	ctx := context.Background()
	e, err := gemini.NewEmbedder(ctx, "test-key", "", option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer e.Close()

	vecs, err := e.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(2), vecs[2][0])
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedder_EmbedBatch_SplitsLargeInput(t *testing.T) {
	var calls atomic.Int32
	ts := fakeGemini(t, &calls)
	defer ts.Close()

	ctx := context.Background()
	e, err := gemini.NewEmbedder(ctx, "test-key", "text-embedding-004", option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer e.Close()

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = "t"
	}
	vecs, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	assert.Len(t, vecs, 150)
	assert.Equal(t, int32(2), calls.Load())
	// second call restarts numbering
	assert.Equal(t, float32(0), vecs[100][0])
}

func TestEmbedder_EmbedBatch_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`))
	}))
	defer ts.Close()

	ctx := context.Background()
	e, err := gemini.NewEmbedder(ctx, "test-key", "", option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer e.Close()

	vecs, err := e.EmbedBatch(ctx, []string{"alpha"})
	assert.Error(t, err)
	assert.Nil(t, vecs)
}

func TestNewEmbedder_MissingKey(t *testing.T) {
	_, err := gemini.NewEmbedder(context.Background(), "", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gemini api key not configured")
}
