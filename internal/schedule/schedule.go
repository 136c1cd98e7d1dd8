// Package schedule manages appointment records. Records live in the KV
// store under the appt: namespace with a seven-day TTL; a companion set
// tracks the ids of live appointments for listing.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/frontdesk-labs/concierge/internal/kv"
	"github.com/frontdesk-labs/concierge/internal/metrics"
)

// apptTTL bounds how long a record outlives its creation. Past appointments
// age out on their own instead of accumulating.
const apptTTL = 7 * 24 * time.Hour

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"
)

var (
	// ErrNotFound is returned when an appointment id resolves to nothing,
	// whether it never existed or its record expired.
	ErrNotFound = errors.New("appointment not found")
	// ErrInvalid marks caller mistakes: missing fields or a malformed slot.
	ErrInvalid = errors.New("invalid appointment request")
)

// Appointment is one booked slot.
type Appointment struct {
	ApptID    string     `json:"appt_id"`
	Patient   string     `json:"patient"`
	SlotISO   string     `json:"slot_iso"`
	Location  string     `json:"location"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Slot returns the appointment time.
func (a *Appointment) Slot() (time.Time, error) {
	return time.Parse(time.RFC3339, a.SlotISO)
}

// Service reads and writes appointment records.
type Service struct {
	store  *kv.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the appointment service.
func NewService(store *kv.Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// normalizeSlot validates a slot timestamp and rewrites it as UTC RFC 3339.
func normalizeSlot(slotISO string) (string, error) {
	ts, err := time.Parse(time.RFC3339, slotISO)
	if err != nil {
		return "", fmt.Errorf("%w: slot %q is not a valid timestamp", ErrInvalid, slotISO)
	}
	return ts.UTC().Format(time.RFC3339), nil
}

// Create books a new appointment. Patient and slot are required; the slot
// must be a valid RFC 3339 timestamp.
func (s *Service) Create(ctx context.Context, patient, slotISO, location string) (*Appointment, error) {
	if patient == "" {
		return nil, fmt.Errorf("%w: patient is required", ErrInvalid)
	}
	slot, err := normalizeSlot(slotISO)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		ApptID:    uuid.NewString(),
		Patient:   patient,
		SlotISO:   slot,
		Location:  location,
		Status:    StatusScheduled,
		CreatedAt: s.now().UTC(),
	}
	if err := s.put(ctx, appt); err != nil {
		return nil, err
	}
	if err := s.store.SAdd(ctx, kv.KeyApptSet, appt.ApptID); err != nil {
		s.logger.Warn("appointment index update failed",
			zap.String("appt_id", appt.ApptID), zap.Error(err))
	}
	metrics.AppointmentsCreated.Inc()
	s.logger.Info("appointment created",
		zap.String("appt_id", appt.ApptID),
		zap.String("patient", patient),
		zap.String("slot", slot),
		zap.String("location", location))
	return appt, nil
}

// Reschedule moves an existing appointment to a new slot.
func (s *Service) Reschedule(ctx context.Context, apptID, newSlotISO string) (*Appointment, error) {
	appt, err := s.Get(ctx, apptID)
	if err != nil {
		return nil, err
	}
	slot, err := normalizeSlot(newSlotISO)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	appt.SlotISO = slot
	appt.Status = StatusScheduled
	appt.UpdatedAt = &now
	if err := s.put(ctx, appt); err != nil {
		return nil, err
	}
	metrics.AppointmentsRescheduled.Inc()
	s.logger.Info("appointment rescheduled",
		zap.String("appt_id", apptID), zap.String("slot", slot))
	return appt, nil
}

// Cancel marks an appointment cancelled and drops it from the live index.
// The record itself stays readable until its TTL expires.
func (s *Service) Cancel(ctx context.Context, apptID string) (*Appointment, error) {
	appt, err := s.Get(ctx, apptID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	appt.Status = StatusCancelled
	appt.UpdatedAt = &now
	if err := s.put(ctx, appt); err != nil {
		return nil, err
	}
	if err := s.store.SRem(ctx, kv.KeyApptSet, apptID); err != nil {
		s.logger.Warn("appointment index update failed",
			zap.String("appt_id", apptID), zap.Error(err))
	}
	s.logger.Info("appointment cancelled", zap.String("appt_id", apptID))
	return appt, nil
}

// Get loads one appointment by id.
func (s *Service) Get(ctx context.Context, apptID string) (*Appointment, error) {
	raw, ok := s.store.Get(ctx, kv.NSAppt+apptID)
	if !ok {
		return nil, ErrNotFound
	}
	var appt Appointment
	if err := json.Unmarshal(raw, &appt); err != nil {
		return nil, fmt.Errorf("decode appointment %s: %w", apptID, err)
	}
	return &appt, nil
}

// List returns all live appointments. Ids whose records have expired are
// pruned from the index as they are encountered.
func (s *Service) List(ctx context.Context) ([]*Appointment, error) {
	ids, err := s.store.SMembers(ctx, kv.KeyApptSet)
	if err != nil {
		return nil, err
	}
	appts := make([]*Appointment, 0, len(ids))
	for _, id := range ids {
		appt, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			if remErr := s.store.SRem(ctx, kv.KeyApptSet, id); remErr != nil {
				s.logger.Warn("stale appointment id prune failed",
					zap.String("appt_id", id), zap.Error(remErr))
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, nil
}

// DeleteAll removes every appointment record and the live index. Returns the
// number of records removed.
func (s *Service) DeleteAll(ctx context.Context) (int, error) {
	n, err := s.store.DelPattern(ctx, kv.NSAppt+"*")
	if err != nil {
		return 0, err
	}
	if err := s.store.Del(ctx, kv.KeyApptSet); err != nil {
		return n, err
	}
	return n, nil
}

func (s *Service) put(ctx context.Context, appt *Appointment) error {
	raw, err := json.Marshal(appt)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, kv.NSAppt+appt.ApptID, raw, apptTTL)
}
