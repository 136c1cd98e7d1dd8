package orchestrator

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/frontdesk-labs/concierge/internal/answer"
	"github.com/frontdesk-labs/concierge/internal/entities"
	"github.com/frontdesk-labs/concierge/internal/intent"
	"github.com/frontdesk-labs/concierge/internal/knowledge"
	"github.com/frontdesk-labs/concierge/internal/kv"
	"github.com/frontdesk-labs/concierge/internal/schedule"
	"github.com/frontdesk-labs/concierge/internal/session"
	"github.com/frontdesk-labs/concierge/internal/vectordb"
)

// hashEmbedder produces stable unit vectors from word occurrence counts, so
// texts sharing words land close in cosine space.
type hashEmbedder struct{}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, 32)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := 0
			for _, r := range w {
				h = h*31 + int(r)
			}
			vec[((h%32)+32)%32]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm > 0 {
			n := float32(math.Sqrt(norm))
			for j := range vec {
				vec[j] /= n
			}
		}
		out[i] = vec
	}
	return out, nil
}

// memIndex is an in-memory stand-in for the Qdrant client.
type memIndex struct {
	mu     sync.Mutex
	points map[string]vectordb.UpsertItem
}

func newMemIndex() *memIndex {
	return &memIndex{points: make(map[string]vectordb.UpsertItem)}
}

func (m *memIndex) EnsureCollection(context.Context, string, int) error { return nil }
func (m *memIndex) CreateCollection(context.Context, string, int) error { return nil }

func (m *memIndex) DropCollection(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = make(map[string]vectordb.UpsertItem)
	return nil
}

func (m *memIndex) Upsert(_ context.Context, _ string, points []vectordb.UpsertItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = p
	}
	return nil
}

func (m *memIndex) Search(_ context.Context, _ string, vec []float32, limit int, threshold float64) ([]vectordb.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pts []vectordb.Point
	for _, p := range m.points {
		var dot float64
		for i := range vec {
			if i < len(p.Vector) {
				dot += float64(vec[i]) * float64(p.Vector[i])
			}
		}
		if dot >= threshold {
			pts = append(pts, vectordb.Point{ID: p.ID, Score: dot, Payload: p.Payload})
		}
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].Score != pts[j].Score {
			return pts[i].Score > pts[j].Score
		}
		return pts[i].ID < pts[j].ID
	})
	if len(pts) > limit {
		pts = pts[:limit]
	}
	return pts, nil
}

type testEnv struct {
	engine   *Engine
	dao      *knowledge.DAO
	sessions *session.Manager
	store    *kv.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := kv.NewStore("redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	emb := &hashEmbedder{}
	dao := knowledge.NewDAO(emb, newMemIndex(), store, "clinic_knowledge", 32, zap.NewNop())

	backend, err := intent.NewBayesBackend()
	require.NoError(t, err)

	sessions := session.NewManager(store, zap.NewNop())
	engine := NewEngine(
		intent.NewClassifier(backend, zap.NewNop()),
		dao,
		answer.NewExtractor(emb, zap.NewNop()),
		entities.NewExtractor(zap.NewNop()),
		schedule.NewService(store, zap.NewNop()),
		sessions,
		store,
		zap.NewNop(),
	)
	return &testEnv{engine: engine, dao: dao, sessions: sessions, store: store}
}

func (env *testEnv) ingestPolicy(t *testing.T) {
	t.Helper()
	_, err := env.dao.Upsert(context.Background(), []knowledge.Document{{
		ID:   "pol-1",
		Text: "Our late policy: patients arriving more than 15 minutes late are rescheduled.",
	}})
	require.NoError(t, err)
}

func TestKnowledgeOnlyTurn(t *testing.T) {
	env := newTestEnv(t)
	env.ingestPolicy(t)

	resp := env.engine.HandleTurn(context.Background(), "what is the late policy?", "s1")
	require.Contains(t, resp.Reply, "more than 15 minutes late")
	require.Len(t, resp.Citations, 1)
	require.Equal(t, "pol-1", resp.Citations[0].DocID)
	require.Equal(t, 0, resp.Citations[0].ChunkIndex)
	require.Equal(t, 1, resp.Citations[0].Ref)
	require.Empty(t, resp.ToolCalls)
	require.Equal(t, "s1", resp.SessionID)
}

func TestScheduleTurn(t *testing.T) {
	env := newTestEnv(t)

	resp := env.engine.HandleTurn(context.Background(), "Book Chen for tomorrow at 10:30", "s2")
	require.True(t, strings.HasPrefix(resp.Reply, "Booked Chen "), "reply was %q", resp.Reply)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "schedule_appointment", resp.ToolCalls[0].Name)
	require.True(t, resp.ToolCalls[0].Result.OK)
	require.NotNil(t, resp.ToolCalls[0].Result.Appointment)

	mem := env.sessions.Get(context.Background(), "s2")
	require.NotNil(t, mem.LastAppt)
	require.Equal(t, "Chen", mem.LastAppt.Patient)
}

func TestRescheduleByContext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.engine.HandleTurn(ctx, "Book Chen for tomorrow at 10:30", "s2")
	require.True(t, first.ToolCalls[0].Result.OK)
	apptID := first.ToolCalls[0].Result.Appointment.ApptID

	second := env.engine.HandleTurn(ctx, "Make it 11:00", "s2")
	require.True(t, strings.HasPrefix(second.Reply, "Rebooked Chen "), "reply was %q", second.Reply)
	require.Len(t, second.ToolCalls, 1)
	require.Equal(t, "reschedule_appointment", second.ToolCalls[0].Name)
	require.True(t, second.ToolCalls[0].Result.OK)
	require.Equal(t, apptID, second.ToolCalls[0].Result.Appointment.ApptID)
}

func TestDualIntentTurn(t *testing.T) {
	env := newTestEnv(t)
	env.ingestPolicy(t)

	resp := env.engine.HandleTurn(context.Background(),
		"what's the late policy and book Rivera for tomorrow at 9am at Uptown", "s3")
	require.Contains(t, resp.Reply, "more than 15 minutes late")
	require.Contains(t, resp.Reply, "Booked Rivera ")
	require.NotEmpty(t, resp.Citations)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "schedule_appointment", resp.ToolCalls[0].Name)
}

func TestUnclearTurn(t *testing.T) {
	env := newTestEnv(t)

	resp := env.engine.HandleTurn(context.Background(), "hello", "")
	require.Equal(t, replyClarification, resp.Reply)
	require.Empty(t, resp.Citations)
	require.Empty(t, resp.ToolCalls)
	require.Len(t, resp.PlanSteps, 1)
	require.Equal(t, StepIntentDetection, resp.PlanSteps[0]["step"])
	require.NotEmpty(t, resp.SessionID, "server mints a session id when none is given")
}

func TestMissingEntityTurn(t *testing.T) {
	env := newTestEnv(t)

	resp := env.engine.HandleTurn(context.Background(), "Book for tomorrow", "s4")
	require.Contains(t, resp.Reply, "Book Chen for tomorrow at 10:30")
	require.Empty(t, resp.ToolCalls)
}

func TestKnowledgeEmptyCorpus(t *testing.T) {
	env := newTestEnv(t)

	resp := env.engine.HandleTurn(context.Background(), "what is the late policy?", "s1")
	require.Equal(t, replyNoKnowledge, resp.Reply)
	require.Empty(t, resp.Citations)
}

func TestRescheduleUnknownAppointment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The session remembers an appointment whose record no longer exists.
	require.NoError(t, env.sessions.SetLastAppt(ctx, "s5", &session.LastAppt{
		ApptID: "gone", Patient: "Chen",
	}))

	resp := env.engine.HandleTurn(ctx, "Make it 11:00", "s5")
	require.Len(t, resp.ToolCalls, 1)
	require.False(t, resp.ToolCalls[0].Result.OK)
	require.Contains(t, resp.ToolCalls[0].Result.Error, "not found")
	require.Contains(t, resp.Reply, "couldn't reschedule")
}

func TestPlanStepsStartWithIntentDetection(t *testing.T) {
	env := newTestEnv(t)
	env.ingestPolicy(t)

	for _, msg := range []string{
		"what is the late policy?",
		"Book Chen for tomorrow at 10:30",
		"hello",
	} {
		resp := env.engine.HandleTurn(context.Background(), msg, "")
		require.NotEmpty(t, resp.PlanSteps, "message %q", msg)
		require.Equal(t, StepIntentDetection, resp.PlanSteps[0]["step"], "message %q", msg)
	}
}

func TestKnowledgeReplyCached(t *testing.T) {
	env := newTestEnv(t)
	env.ingestPolicy(t)
	ctx := context.Background()

	first := env.engine.HandleTurn(ctx, "what is the late policy?", "s1")
	key := kv.TruncatedKey(kv.NSKnowledge, "what is the late policy?")
	require.Eventually(t, func() bool {
		_, ok := env.store.Get(ctx, key)
		return ok
	}, time.Second, 10*time.Millisecond, "answer cache write is asynchronous")

	second := env.engine.HandleTurn(ctx, "what is the late policy?", "s1")
	require.Equal(t, first.Reply, second.Reply)
	require.Equal(t, first.Citations, second.Citations)

	var sawCacheHit bool
	for _, step := range second.PlanSteps {
		if step["step"] == StepRetrieve && step["cache"] == true {
			sawCacheHit = true
		}
	}
	require.True(t, sawCacheHit, "second turn should answer from the knowledge cache")
}

func TestTurnPanicReturnsApology(t *testing.T) {
	env := newTestEnv(t)
	// A nil DAO makes the knowledge branch panic; the turn must still
	// produce an envelope with the accumulated plan steps.
	env.engine.dao = nil

	resp := env.engine.HandleTurn(context.Background(), "what is the late policy?", "s1")
	require.Equal(t, replyApology, resp.Reply)
	require.NotEmpty(t, resp.Error)
	require.NotEmpty(t, resp.PlanSteps)
	require.Equal(t, StepIntentDetection, resp.PlanSteps[0]["step"])
}

func TestDistinctSessionsDoNotShareMemory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.engine.HandleTurn(ctx, "Book Chen for tomorrow at 10:30", "sa")
	b := env.engine.HandleTurn(ctx, "Book Rivera for tomorrow at 9am at Uptown", "sb")
	require.True(t, a.ToolCalls[0].Result.OK)
	require.True(t, b.ToolCalls[0].Result.OK)

	require.Equal(t, "Chen", env.sessions.Get(ctx, "sa").LastAppt.Patient)
	require.Equal(t, "Rivera", env.sessions.Get(ctx, "sb").LastAppt.Patient)
}
