package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/frontdesk-labs/concierge/internal/kv"
)

// fakeProvider serves the OpenAI embeddings wire format and counts calls.
func fakeProvider(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]datum, len(req.Input))
		for i, text := range req.Input {
			vec := make([]float64, 4)
			for j := range vec {
				vec[j] = float64(len(text)%7) + float64(j)
			}
			data[i] = datum{Embedding: vec, Index: i}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data, "model": req.Model})
	}))
}

func newTestService(t *testing.T, baseURL string) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := kv.NewStore("redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewService(Config{BaseURL: baseURL, Model: "test-model", Dimensions: 4}, store, zap.NewNop())
}

func TestEmbedReturnsVector(t *testing.T) {
	var calls atomic.Int64
	srv := fakeProvider(t, &calls)
	defer srv.Close()

	s := newTestService(t, srv.URL)
	vec, err := s.Embed(context.Background(), "what is the parking policy?")
	require.NoError(t, err)
	require.Len(t, vec, 4)
	require.EqualValues(t, 1, calls.Load())
}

func TestEmbedHitsLRUOnRepeat(t *testing.T) {
	var calls atomic.Int64
	srv := fakeProvider(t, &calls)
	defer srv.Close()

	s := newTestService(t, srv.URL)
	first, err := s.Embed(context.Background(), "late policy")
	require.NoError(t, err)
	second, err := s.Embed(context.Background(), "late policy")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.EqualValues(t, 1, calls.Load())
}

func TestEmbedBatchMixesCachedAndFresh(t *testing.T) {
	var calls atomic.Int64
	srv := fakeProvider(t, &calls)
	defer srv.Close()

	s := newTestService(t, srv.URL)
	ctx := context.Background()

	_, err := s.Embed(ctx, "sentence one")
	require.NoError(t, err)

	out, err := s.EmbedBatch(ctx, []string{"sentence one", "sentence two", "sentence three"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, v := range out {
		require.Len(t, v, 4)
	}
	// One call for the warm-up, one for the two uncached texts.
	require.EqualValues(t, 2, calls.Load())
}

func TestEmbedProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := newTestService(t, srv.URL)
	_, err := s.Embed(context.Background(), "anything")
	require.Error(t, err)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.75, 0}
	out, ok := decodeVector(encodeVector(in))
	require.True(t, ok)
	require.Equal(t, in, out)

	_, ok = decodeVector([]byte{1, 2, 3})
	require.False(t, ok)
}

func TestLocalLRUEvictsOldest(t *testing.T) {
	lru := NewLocalLRU(2)
	lru.Set("a", []float32{1}, time.Minute)
	lru.Set("b", []float32{2}, time.Minute)
	lru.Set("c", []float32{3}, time.Minute)

	_, ok := lru.Get("a")
	require.False(t, ok)
	_, ok = lru.Get("c")
	require.True(t, ok)
}
