// Package orchestrator drives one chat turn end to end: intent detection,
// branch dispatch, reply composition, and the plan-step trace returned to
// the caller.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/frontdesk-labs/concierge/internal/answer"
	"github.com/frontdesk-labs/concierge/internal/entities"
	"github.com/frontdesk-labs/concierge/internal/intent"
	"github.com/frontdesk-labs/concierge/internal/knowledge"
	"github.com/frontdesk-labs/concierge/internal/kv"
	"github.com/frontdesk-labs/concierge/internal/metrics"
	"github.com/frontdesk-labs/concierge/internal/schedule"
	"github.com/frontdesk-labs/concierge/internal/session"
)

// Plan step names. These are part of the wire contract.
const (
	StepIntentDetection = "intent_detection"
	StepExtractEntities = "extract_entities"
	StepExtractTime     = "extract_time"
	StepSchedule        = "schedule_appointment"
	StepReschedule      = "reschedule_appointment"
	StepRetrieve        = "retrieve_knowledge"
)

// Templated replies. Wording is part of the behavioral contract; clients
// and their tests match on these strings.
const (
	replyClarification = "I'm not sure what you mean. You can ask about our policies or schedule an appointment."
	replyNoKnowledge   = "I don't have information about that yet. Please ask about our policies, hours, parking, or insurance."
	replyNeedEntities  = "I need a name and a time to book. For example: 'Book Chen for tomorrow at 10:30'."
	replyNeedNewTime   = "I need a new time for that. For example: 'Make it 11:00'."
	replyBookingFailed = "Sorry, I couldn't book that appointment. Please try again."
	replyApology       = "Sorry, something went wrong handling that request. Please try again."
)

const (
	// topK retrieved chunks per knowledge turn.
	topK = 3
	// knowledgeTTL caches the final extracted answer per message.
	knowledgeTTL = 600 * time.Second
)

// rescheduleRe, combined with a remembered appointment, routes a schedule
// turn into the reschedule subflow.
var rescheduleRe = regexp.MustCompile(`(?i)make it|change to|move|reschedule|change the|move it`)

// PlanStep is one trace entry: {step, ..., latency_ms}. Steps from parallel
// branches interleave in completion order.
type PlanStep map[string]interface{}

// ToolCall records one side-effecting tool invocation made during a turn.
type ToolCall struct {
	Name   string                 `json:"name"`
	Args   map[string]interface{} `json:"args,omitempty"`
	Result ToolResult             `json:"result"`
}

// ToolResult is the tagged outcome of a tool call.
type ToolResult struct {
	OK          bool                  `json:"ok"`
	Error       string                `json:"error,omitempty"`
	Appointment *schedule.Appointment `json:"appointment,omitempty"`
}

// Response is the /chat envelope.
type Response struct {
	Reply     string               `json:"reply"`
	Citations []knowledge.Citation `json:"citations"`
	PlanSteps []PlanStep           `json:"plan_steps"`
	ToolCalls []ToolCall           `json:"tool_calls,omitempty"`
	LatencyMS int64                `json:"latency_ms"`
	SessionID string               `json:"session_id"`
	Error     string               `json:"error,omitempty"`
}

// cachedAnswer is the knowledge: cache entry.
type cachedAnswer struct {
	Reply     string               `json:"reply"`
	Citations []knowledge.Citation `json:"citations"`
}

// branchResult is what one dispatch branch contributes to the envelope.
type branchResult struct {
	reply     string
	citations []knowledge.Citation
	tools     []ToolCall
}

// Engine wires the turn pipeline together. It holds no per-turn state; all
// conversation state lives in session memory.
type Engine struct {
	classifier *intent.Classifier
	dao        *knowledge.DAO
	extractor  *answer.Extractor
	entities   *entities.Extractor
	scheduler  *schedule.Service
	sessions   *session.Manager
	store      *kv.Store
	logger     *zap.Logger
}

// NewEngine creates the turn engine.
func NewEngine(
	classifier *intent.Classifier,
	dao *knowledge.DAO,
	extractor *answer.Extractor,
	ents *entities.Extractor,
	scheduler *schedule.Service,
	sessions *session.Manager,
	store *kv.Store,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		classifier: classifier,
		dao:        dao,
		extractor:  extractor,
		entities:   ents,
		scheduler:  scheduler,
		sessions:   sessions,
		store:      store,
		logger:     logger,
	}
}

// HandleTurn runs one chat turn. It never returns an error: failures inside
// a branch degrade that branch, and anything unexpected is caught at the top
// so the caller still receives the accumulated plan steps.
func (e *Engine) HandleTurn(ctx context.Context, message, sessionID string) (resp *Response) {
	start := time.Now()
	if sessionID == "" {
		sessionID = e.sessions.Mint()
	}
	rec := newPlanRecorder()
	resp = &Response{SessionID: sessionID, Citations: []knowledge.Citation{}}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("chat turn panicked",
				zap.String("session_id", sessionID), zap.Any("panic", r))
			resp.Reply = replyApology
			resp.Error = fmt.Sprint(r)
		}
		resp.PlanSteps = rec.list()
		resp.LatencyMS = time.Since(start).Milliseconds()
		metrics.ChatTurnDuration.Observe(time.Since(start).Seconds())
	}()

	stepStart := time.Now()
	iv := e.classifier.Predict(message)
	rec.add(StepIntentDetection, stepStart, PlanStep{
		"schedule":  iv.Schedule,
		"knowledge": iv.Knowledge,
	})
	metrics.ChatTurns.WithLabelValues(iv.String()).Inc()

	mem := e.sessions.Get(ctx, sessionID)
	wantReschedule := rescheduleRe.MatchString(message) && mem.LastAppt != nil
	doSchedule := iv.Schedule || wantReschedule

	switch {
	case doSchedule && iv.Knowledge:
		var kres, sres branchResult
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			kres = e.knowledgePath(gctx, message, rec)
			return nil
		})
		g.Go(func() error {
			sres = e.schedulePath(gctx, message, sessionID, mem, wantReschedule, rec)
			return nil
		})
		_ = g.Wait()

		var parts []string
		for _, p := range []string{kres.reply, sres.reply} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		resp.Reply = strings.Join(parts, " ")
		if kres.citations != nil {
			resp.Citations = kres.citations
		}
		resp.ToolCalls = sres.tools

	case iv.Knowledge:
		kres := e.knowledgePath(ctx, message, rec)
		resp.Reply = kres.reply
		if kres.citations != nil {
			resp.Citations = kres.citations
		}

	case doSchedule:
		sres := e.schedulePath(ctx, message, sessionID, mem, wantReschedule, rec)
		resp.Reply = sres.reply
		resp.ToolCalls = sres.tools

	default:
		resp.Reply = replyClarification
	}
	return resp
}

// knowledgePath answers a question from the ingested corpus. The extracted
// answer is cached per message; a cache hit skips retrieval entirely.
func (e *Engine) knowledgePath(ctx context.Context, message string, rec *planRecorder) branchResult {
	stepStart := time.Now()
	key := kv.TruncatedKey(kv.NSKnowledge, message)
	if raw, ok := e.store.Get(ctx, key); ok {
		var cached cachedAnswer
		if err := json.Unmarshal(raw, &cached); err == nil {
			rec.add(StepRetrieve, stepStart, PlanStep{"cache": true})
			return branchResult{reply: cached.Reply, citations: cached.Citations}
		}
	}

	results, err := e.dao.Search(ctx, message, topK)
	if err != nil {
		e.logger.Warn("knowledge retrieval failed", zap.Error(err))
	}
	rec.add(StepRetrieve, stepStart, PlanStep{"results": len(results)})
	if len(results) == 0 {
		return branchResult{reply: replyNoKnowledge}
	}

	// The reply sentence comes out of the top chunk; that chunk is the one
	// the reply cites.
	best := results[0]
	reply := e.extractor.BestSentence(ctx, message, best.Text)
	citations := knowledge.CitationsFor(results[:1])

	if raw, err := json.Marshal(cachedAnswer{Reply: reply, Citations: citations}); err == nil {
		e.store.SetAsync(key, raw, knowledgeTTL)
	}
	return branchResult{reply: reply, citations: citations}
}

// schedulePath runs the schedule or reschedule subflow.
func (e *Engine) schedulePath(ctx context.Context, message, sessionID string, mem *session.Memory, reschedule bool, rec *planRecorder) branchResult {
	if reschedule {
		return e.rescheduleSubflow(ctx, message, sessionID, mem, rec)
	}

	stepStart := time.Now()
	ents := e.entities.Extract(message)
	rec.add(StepExtractEntities, stepStart, PlanStep{
		"patient":  ents.Patient,
		"slot":     ents.SlotISO,
		"location": ents.Location,
	})
	if ents.Patient == "" || ents.SlotISO == "" {
		return branchResult{reply: replyNeedEntities}
	}

	stepStart = time.Now()
	appt, err := e.scheduler.Create(ctx, ents.Patient, ents.SlotISO, ents.Location)
	call := ToolCall{
		Name: StepSchedule,
		Args: map[string]interface{}{
			"patient":            ents.Patient,
			"preferred_slot_iso": ents.SlotISO,
			"location":           ents.Location,
		},
	}
	if err != nil {
		rec.add(StepSchedule, stepStart, PlanStep{"ok": false})
		e.logger.Warn("booking failed", zap.String("session_id", sessionID), zap.Error(err))
		call.Result = ToolResult{Error: err.Error()}
		return branchResult{reply: replyBookingFailed, tools: []ToolCall{call}}
	}
	rec.add(StepSchedule, stepStart, PlanStep{"ok": true, "appt_id": appt.ApptID})
	call.Result = ToolResult{OK: true, Appointment: appt}

	e.rememberAppt(ctx, sessionID, appt)
	reply := fmt.Sprintf("Booked %s for %s at %s.", appt.Patient, shortDateTime(appt.SlotISO), appt.Location)
	return branchResult{reply: reply, tools: []ToolCall{call}}
}

// rescheduleSubflow moves the session's remembered appointment to a new time.
func (e *Engine) rescheduleSubflow(ctx context.Context, message, sessionID string, mem *session.Memory, rec *planRecorder) branchResult {
	stepStart := time.Now()
	slot := e.entities.Slot(message)
	rec.add(StepExtractTime, stepStart, PlanStep{"slot": slot})
	if slot == "" {
		return branchResult{reply: replyNeedNewTime}
	}

	stepStart = time.Now()
	appt, err := e.scheduler.Reschedule(ctx, mem.LastAppt.ApptID, slot)
	call := ToolCall{
		Name: StepReschedule,
		Args: map[string]interface{}{
			"appt_id":      mem.LastAppt.ApptID,
			"new_slot_iso": slot,
		},
	}
	if err != nil {
		rec.add(StepReschedule, stepStart, PlanStep{"ok": false})
		e.logger.Warn("reschedule failed",
			zap.String("session_id", sessionID),
			zap.String("appt_id", mem.LastAppt.ApptID), zap.Error(err))
		call.Result = ToolResult{Error: err.Error()}
		return branchResult{
			reply: fmt.Sprintf("Sorry, I couldn't reschedule: %s.", err.Error()),
			tools: []ToolCall{call},
		}
	}
	rec.add(StepReschedule, stepStart, PlanStep{"ok": true, "appt_id": appt.ApptID})
	call.Result = ToolResult{OK: true, Appointment: appt}

	e.rememberAppt(ctx, sessionID, appt)
	reply := fmt.Sprintf("Rebooked %s for %s.", appt.Patient, shortDateTime(appt.SlotISO))
	return branchResult{reply: reply, tools: []ToolCall{call}}
}

// rememberAppt writes the last-appointment fact. A failed write only costs
// the follow-up shortcut, never the turn.
func (e *Engine) rememberAppt(ctx context.Context, sessionID string, appt *schedule.Appointment) {
	la := &session.LastAppt{
		ApptID:    appt.ApptID,
		Patient:   appt.Patient,
		SlotISO:   appt.SlotISO,
		Location:  appt.Location,
		Timestamp: time.Now().UTC(),
	}
	if err := e.sessions.SetLastAppt(ctx, sessionID, la); err != nil {
		e.logger.Warn("session memory write failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// shortDateTime renders a slot in en-US short format for confirmations.
func shortDateTime(slotISO string) string {
	ts, err := time.Parse(time.RFC3339, slotISO)
	if err != nil {
		return slotISO
	}
	return ts.UTC().Format("1/2/2006, 3:04 PM")
}
