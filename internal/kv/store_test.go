package kv

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewStore("redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestTruncatedKeyWidth(t *testing.T) {
	long := strings.Repeat("our very long cancellation policy text ", 10)
	key := TruncatedKey(NSKnowledge, long)
	require.Equal(t, len(NSKnowledge)+100, len(key))

	// Two long inputs sharing a 100-char base64 prefix must collide. This
	// aliasing is load-bearing for externally warmed caches.
	other := long + "tail that differs"
	require.Equal(t, key, TruncatedKey(NSKnowledge, other))
}

func TestTruncatedKeyShortInput(t *testing.T) {
	key := TruncatedKey(NSEmbedding, "parking")
	want := NSEmbedding + base64.StdEncoding.EncodeToString([]byte("parking"))
	require.Equal(t, want, key)
}

func TestQueryKeyIsNotTruncated(t *testing.T) {
	long := strings.Repeat("x", 400)
	key := QueryKey(long)
	require.Equal(t, NSQuery+base64.StdEncoding.EncodeToString([]byte(long)), key)
}

func TestGetSetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, ok := s.Get(ctx, "query:abc")
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "query:abc", []byte(`{"k":1}`), 30*time.Second))
	got, ok := s.Get(ctx, "query:abc")
	require.True(t, ok)
	require.Equal(t, []byte(`{"k":1}`), got)
}

func TestTTLExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "memory:s1", []byte("ctx"), 30*time.Minute))
	mr.FastForward(31 * time.Minute)

	_, ok := s.Get(ctx, "memory:s1")
	require.False(t, ok)
}

func TestSetAsyncWrites(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.SetAsync("emb:deadbeef", []byte{1, 2, 3, 4}, time.Hour)

	require.Eventually(t, func() bool {
		_, ok := s.Get(ctx, "emb:deadbeef")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestSetOperations(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SAdd(ctx, KeyApptSet, "a1", "a2"))
	members, err := s.SMembers(ctx, KeyApptSet)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a1", "a2"}, members)

	require.NoError(t, s.SRem(ctx, KeyApptSet, "a1"))
	members, err = s.SMembers(ctx, KeyApptSet)
	require.NoError(t, err)
	require.Equal(t, []string{"a2"}, members)
}

func TestDelPattern(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "query:a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "query:b", []byte("2"), time.Minute))
	require.NoError(t, s.Set(ctx, "memory:s", []byte("3"), time.Minute))

	n, err := s.DelPattern(ctx, "query:*")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, ok := s.Get(ctx, "memory:s")
	require.True(t, ok)
}
