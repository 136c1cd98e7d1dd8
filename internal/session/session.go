// Package session keeps per-conversation memory. The only durable fact a
// session carries is the last appointment it touched, which is what lets a
// follow-up like "make it 11:00" resolve without restating the booking.
// Records live in the KV store under memory:<session_id>; concurrent turns
// on one session are last-writer-wins.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/frontdesk-labs/concierge/internal/kv"
	"github.com/frontdesk-labs/concierge/internal/metrics"
)

// memoryTTL is the idle lifetime of a session. Every write refreshes it, so
// an active conversation never expires mid-flight.
const memoryTTL = 30 * time.Minute

// LastAppt is the appointment fact remembered from the most recent booking
// or reschedule in this session.
type LastAppt struct {
	ApptID    string    `json:"appt_id"`
	Patient   string    `json:"patient"`
	SlotISO   string    `json:"slot_iso"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// Memory is the stored session record.
type Memory struct {
	SessionID string    `json:"session_id"`
	LastAppt  *LastAppt `json:"last_appt,omitempty"`
}

// Manager reads and writes session memory.
type Manager struct {
	store  *kv.Store
	logger *zap.Logger
}

// NewManager creates a session manager over the shared KV store.
func NewManager(store *kv.Store, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Mint returns a fresh session id.
func (m *Manager) Mint() string {
	return uuid.NewString()
}

// Get loads the memory for a session. A missing or unreadable record comes
// back as empty memory, never an error: a dropped session only costs the
// follow-up shortcut.
func (m *Manager) Get(ctx context.Context, sessionID string) *Memory {
	raw, ok := m.store.Get(ctx, kv.NSMemory+sessionID)
	if !ok {
		return &Memory{SessionID: sessionID}
	}
	var mem Memory
	if err := json.Unmarshal(raw, &mem); err != nil {
		m.logger.Warn("corrupt session memory, starting fresh",
			zap.String("session_id", sessionID), zap.Error(err))
		return &Memory{SessionID: sessionID}
	}
	mem.SessionID = sessionID
	return &mem
}

// SetLastAppt records the appointment fact and refreshes the session TTL.
func (m *Manager) SetLastAppt(ctx context.Context, sessionID string, la *LastAppt) error {
	mem := Memory{SessionID: sessionID, LastAppt: la}
	raw, err := json.Marshal(&mem)
	if err != nil {
		return fmt.Errorf("encode session memory: %w", err)
	}
	if err := m.store.Set(ctx, kv.NSMemory+sessionID, raw, memoryTTL); err != nil {
		return fmt.Errorf("write session memory: %w", err)
	}
	metrics.SessionWrites.Inc()
	return nil
}

// Reset drops one session's memory.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	return m.store.Del(ctx, kv.NSMemory+sessionID)
}

// ActiveSessions lists the ids of sessions whose memory has not expired, and
// updates the active-sessions gauge as a side effect.
func (m *Manager) ActiveSessions(ctx context.Context) ([]string, error) {
	keys, err := m.store.KeysPattern(ctx, kv.NSMemory+"*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, kv.NSMemory))
	}
	metrics.SessionsActive.Set(float64(len(ids)))
	return ids, nil
}
