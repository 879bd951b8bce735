package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDispatchesByProvider(t *testing.T) {
	e, err := New(Config{Provider: "hash", HashDim: 16})
	require.NoError(t, err)
	require.Equal(t, "hash", e.Name())
	require.Equal(t, 16, e.Dimensions())

	e, err = New(Config{Provider: ""})
	require.NoError(t, err)
	require.Equal(t, "hash", e.Name())

	_, err = New(Config{Provider: "unknown"})
	require.Error(t, err)
}

func TestHashEngineIsDeterministic(t *testing.T) {
	e := NewHashEngine(32)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "func Foo() {}")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "func Foo() {}")
	require.NoError(t, err)
	require.Equal(t, v1, v2)

	v3, err := e.Embed(ctx, "func Bar() {}")
	require.NoError(t, err)
	require.NotEqual(t, v1, v3)
	require.Len(t, v1, 32)
}

func TestHashEngineEmbedBatch(t *testing.T) {
	e := NewHashEngine(8)
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.NotEqual(t, out[0], out[1])
}

func TestOllamaEngineEmbedRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "nomic-embed-text", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	e := NewOllamaEngine(srv.URL, "nomic-embed-text", 3)
	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	require.Equal(t, 3, e.Dimensions())
	require.Equal(t, "ollama:nomic-embed-text", e.Name())
}

func TestOllamaEngineEmbedReturnsBackendErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	e := NewOllamaEngine(srv.URL, "m", 4)
	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
}

func TestOllamaEngineEmbedBatchSequential(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{1, 2}})
	}))
	defer srv.Close()

	e := NewOllamaEngine(srv.URL, "m", 2)
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, 3, calls)
}
