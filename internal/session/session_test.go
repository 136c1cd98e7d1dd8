package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/frontdesk-labs/concierge/internal/kv"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := kv.NewStore("redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewManager(store, zap.NewNop()), mr
}

func TestGetUnknownSessionIsEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	mem := m.Get(context.Background(), "s-1")
	require.Equal(t, "s-1", mem.SessionID)
	require.Nil(t, mem.LastAppt)
}

func TestSetAndGetLastAppt(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	la := &LastAppt{
		ApptID:    "a-1",
		Patient:   "Chen",
		SlotISO:   "2026-08-25T10:30:00Z",
		Location:  "Midtown",
		Timestamp: time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, m.SetLastAppt(ctx, "s-1", la))

	got := m.Get(ctx, "s-1")
	require.Equal(t, la, got.LastAppt)
}

func TestLastWriterWins(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetLastAppt(ctx, "s-1", &LastAppt{ApptID: "a-1", Patient: "Chen"}))
	require.NoError(t, m.SetLastAppt(ctx, "s-1", &LastAppt{ApptID: "a-2", Patient: "Rivera"}))

	got := m.Get(ctx, "s-1")
	require.Equal(t, "a-2", got.LastAppt.ApptID)
}

func TestMemoryExpiresWhenIdle(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetLastAppt(ctx, "s-1", &LastAppt{ApptID: "a-1"}))
	mr.FastForward(31 * time.Minute)
	require.Nil(t, m.Get(ctx, "s-1").LastAppt)
}

func TestWriteRefreshesTTL(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetLastAppt(ctx, "s-1", &LastAppt{ApptID: "a-1"}))
	mr.FastForward(20 * time.Minute)
	require.NoError(t, m.SetLastAppt(ctx, "s-1", &LastAppt{ApptID: "a-2"}))
	mr.FastForward(20 * time.Minute)

	got := m.Get(ctx, "s-1")
	require.NotNil(t, got.LastAppt)
	require.Equal(t, "a-2", got.LastAppt.ApptID)
}

func TestCorruptMemoryReadsAsEmpty(t *testing.T) {
	m, mr := newTestManager(t)
	mr.Set(kv.NSMemory+"s-1", "{not json")
	require.Nil(t, m.Get(context.Background(), "s-1").LastAppt)
}

func TestMintIsUnique(t *testing.T) {
	m, _ := newTestManager(t)
	require.NotEqual(t, m.Mint(), m.Mint())
}

func TestActiveSessions(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetLastAppt(ctx, "s-1", &LastAppt{ApptID: "a-1"}))
	require.NoError(t, m.SetLastAppt(ctx, "s-2", &LastAppt{ApptID: "a-2"}))

	ids, err := m.ActiveSessions(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"s-1", "s-2"}, ids)

	require.NoError(t, m.Reset(ctx, "s-1"))
	ids, err = m.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"s-2"}, ids)
}
