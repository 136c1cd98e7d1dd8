// Package httpapi exposes the orchestrator over HTTP: the chat endpoint,
// knowledge ingest, the scheduling tools, and the diagnostic surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/frontdesk-labs/concierge/internal/health"
	"github.com/frontdesk-labs/concierge/internal/knowledge"
	"github.com/frontdesk-labs/concierge/internal/kv"
	"github.com/frontdesk-labs/concierge/internal/orchestrator"
	"github.com/frontdesk-labs/concierge/internal/schedule"
	"github.com/frontdesk-labs/concierge/internal/session"
)

// API owns the public HTTP surface.
type API struct {
	engine    *orchestrator.Engine
	dao       *knowledge.DAO
	scheduler *schedule.Service
	sessions  *session.Manager
	store     *kv.Store
	health    *health.Manager
	limiter   *rate.Limiter
	started   time.Time
	logger    *zap.Logger
}

// NewAPI creates the API. chatRPS <= 0 disables chat rate limiting.
func NewAPI(
	engine *orchestrator.Engine,
	dao *knowledge.DAO,
	scheduler *schedule.Service,
	sessions *session.Manager,
	store *kv.Store,
	healthMgr *health.Manager,
	chatRPS float64,
	logger *zap.Logger,
) *API {
	a := &API{
		engine:    engine,
		dao:       dao,
		scheduler: scheduler,
		sessions:  sessions,
		store:     store,
		health:    healthMgr,
		started:   time.Now(),
		logger:    logger,
	}
	if chatRPS > 0 {
		burst := int(chatRPS)
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(chatRPS), burst)
	}
	return a
}

// RegisterRoutes mounts all endpoints on the mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat", a.handleChat)
	mux.HandleFunc("/knowledge", a.handleKnowledge)
	mux.HandleFunc("/knowledge/reset", a.handleKnowledgeReset)
	mux.HandleFunc("/tools/schedule_appointment", a.handleScheduleTool)
	mux.HandleFunc("/tools/reschedule_appointment", a.handleRescheduleTool)
	mux.HandleFunc("/appointments", a.handleAppointments)
	mux.HandleFunc("/appointments/", a.handleAppointment)
	mux.HandleFunc("/cache/clear", a.handleCacheClear)
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/stats", a.handleStats)
	mux.HandleFunc("/debug/sessions", a.handleDebugSessions)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	body := map[string]string{"error": msg}
	if len(details) > 0 {
		body["details"] = strings.Join(details, "; ")
	}
	writeJSON(w, status, body)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if a.limiter != nil && !a.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp := a.engine.HandleTurn(r.Context(), req.Message, req.SessionID)
	writeJSON(w, http.StatusOK, resp)
}

type ingestRequest struct {
	Documents []knowledge.Document `json:"documents"`
}

type ingestResponse struct {
	OK            bool `json:"ok"`
	DocumentCount int  `json:"document_count"`
	ChunkCount    int  `json:"chunk_count"`
}

func (a *API) handleKnowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents is required")
		return
	}
	for _, doc := range req.Documents {
		if doc.ID == "" || doc.Text == "" {
			writeError(w, http.StatusBadRequest, "each document needs id and text")
			return
		}
	}

	chunks, err := a.dao.Upsert(r.Context(), req.Documents)
	if err != nil {
		a.logger.Error("ingest failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ingest failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		OK:            true,
		DocumentCount: len(req.Documents),
		ChunkCount:    chunks,
	})
}

func (a *API) handleKnowledgeReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := a.dao.Reset(r.Context()); err != nil {
		a.logger.Error("knowledge reset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reset failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type scheduleToolRequest struct {
	Patient          string `json:"patient"`
	PreferredSlotISO string `json:"preferred_slot_iso"`
	Location         string `json:"location"`
}

func (a *API) handleScheduleTool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req scheduleToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Patient == "" || req.PreferredSlotISO == "" {
		writeError(w, http.StatusBadRequest, "patient and preferred_slot_iso are required")
		return
	}

	appt, err := a.scheduler.Create(r.Context(), req.Patient, req.PreferredSlotISO, req.Location)
	if err != nil {
		a.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type rescheduleToolRequest struct {
	ApptID     string `json:"appt_id"`
	NewSlotISO string `json:"new_slot_iso"`
}

func (a *API) handleRescheduleTool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req rescheduleToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ApptID == "" || req.NewSlotISO == "" {
		writeError(w, http.StatusBadRequest, "appt_id and new_slot_iso are required")
		return
	}

	appt, err := a.scheduler.Reschedule(r.Context(), req.ApptID, req.NewSlotISO)
	if err != nil {
		a.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (a *API) writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, schedule.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error("appointment operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "appointment operation failed", err.Error())
	}
}

func (a *API) handleAppointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		appts, err := a.scheduler.List(r.Context())
		if err != nil {
			a.logger.Error("appointment listing failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "listing failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, appts)
	case http.MethodDelete:
		n, err := a.scheduler.DeleteAll(r.Context())
		if err != nil {
			a.logger.Error("appointment wipe failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "delete failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "deleted": n})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *API) handleAppointment(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/appointments/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		appt, err := a.scheduler.Get(r.Context(), id)
		if err != nil {
			a.writeScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	case http.MethodDelete:
		appt, err := a.scheduler.Cancel(r.Context(), id)
		if err != nil {
			a.writeScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "appointment": appt})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCacheClear wipes the derived caches (embeddings, retrieval, answers).
// Session memory and appointment records are data, not cache, and stay put.
func (a *API) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cleared := 0
	for _, ns := range []string{kv.NSEmbedding, kv.NSQuery, kv.NSKnowledge} {
		n, err := a.store.DelPattern(r.Context(), ns+"*")
		if err != nil {
			a.logger.Error("cache clear failed", zap.String("namespace", ns), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "cache clear failed", err.Error())
			return
		}
		cleared += n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "cleared": cleared})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report := a.health.Check(r.Context())
	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	appts, err := a.scheduler.List(r.Context())
	if err != nil {
		a.logger.Warn("stats: appointment listing failed", zap.Error(err))
	}
	sessionIDs, err := a.sessions.ActiveSessions(r.Context())
	if err != nil {
		a.logger.Warn("stats: session listing failed", zap.Error(err))
	}
	hits, misses := cacheCounters()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_s":        int64(time.Since(a.started).Seconds()),
		"documents":       a.dao.DocumentCount(),
		"chunks":          a.dao.ChunkCount(),
		"appointments":    len(appts),
		"sessions_active": len(sessionIDs),
		"cache": map[string]float64{
			"hits":   hits,
			"misses": misses,
		},
	})
}

func (a *API) handleDebugSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ids, err := a.sessions.ActiveSessions(r.Context())
	if err != nil {
		a.logger.Error("session listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session listing failed", err.Error())
		return
	}
	out := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		mem := a.sessions.Get(r.Context(), id)
		out = append(out, map[string]interface{}{
			"session_id": id,
			"last_appt":  mem.LastAppt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(out),
		"sessions": out,
	})
}
