package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/clock"
	"github.com/hlachaal/24hkids-platform/internal/database/memory"
	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"
	"github.com/hlachaal/24hkids-platform/pkg/sqlite"

	"github.com/stretchr/testify/require"
)

var (
	today      = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	eventStart = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
)

type notification struct {
	kind      entity.OutboxKind
	bookingID int64
	reason    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) NotifyDeleted(ctx context.Context, booking *entity.Booking, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification{kind: entity.OutboxBookingDeleted, bookingID: booking.ID, reason: reason})
	return nil
}

func (n *recordingNotifier) NotifyPromoted(ctx context.Context, booking *entity.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification{kind: entity.OutboxBookingPromoted, bookingID: booking.ID})
	return nil
}

func (n *recordingNotifier) notifications() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type recordedAudit struct {
	action   entity.AuditAction
	actor    string
	targetID int64
	details  map[string]interface{}
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []recordedAudit
}

func (a *recordingAudit) Record(ctx context.Context, action entity.AuditAction, actor string, targetID int64, details map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, recordedAudit{action: action, actor: actor, targetID: targetID, details: details})
}

func (a *recordingAudit) actions() []entity.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]entity.AuditAction, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.action)
	}
	return out
}

type harness struct {
	store    repository.Store
	clock    *clock.Fake
	notifier *recordingNotifier
	audit    *recordingAudit

	bookings BookingService
	events   EventService
	family   FamilyService

	guardianID int64
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStore(t, memory.NewStore())
}

func newHarnessWithStore(t *testing.T, store repository.Store) *harness {
	t.Helper()
	h := &harness{
		store:    store,
		clock:    clock.NewFake(today),
		notifier: &recordingNotifier{},
		audit:    &recordingAudit{},
	}
	h.wire(store)

	guardian, err := h.family.RegisterGuardian(context.Background(), &RegisterGuardianRequest{
		Email: "parent@example.com",
		Name:  "Parent",
	})
	require.NoError(t, err)
	h.guardianID = guardian.ID
	return h
}

// openSQLiteStore opens a migrated SQLite store in a temporary directory.
func openSQLiteStore(t *testing.T) repository.Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "booking.db"))
	require.NoError(t, err)
	store := repository.NewSQLStore(db, repository.DialectSQLite, 0)
	t.Cleanup(func() { store.Close() })
	return store
}

// wire builds the services on top of store, which may wrap h.store.
func (h *harness) wire(store repository.Store) {
	opts := Options{MaxAttempts: 3, BaseDelay: time.Millisecond, TxTimeout: 5 * time.Second}
	dispatcher := NewDispatcher(store.Outbox(), nil, h.notifier, h.clock)

	h.bookings = NewBookingService(store, h.clock, dispatcher, h.audit, opts)
	h.events = NewEventService(store, h.clock, dispatcher, h.audit, opts)
	h.family = NewFamilyService(store, h.clock, h.audit, opts)
}

type eventSpec struct {
	offset   time.Duration
	duration time.Duration
	minAge   int
	maxAge   int
	capacity int
}

func (h *harness) event(t *testing.T, spec eventSpec) *entity.Event {
	t.Helper()
	if spec.duration == 0 {
		spec.duration = 2 * time.Hour
	}
	if spec.maxAge == 0 {
		spec.minAge, spec.maxAge = 6, 12
	}
	start := eventStart.Add(spec.offset)
	event, err := h.events.CreateEvent(context.Background(), &CreateEventRequest{
		Title:    "Workshop",
		StartsAt: start,
		EndsAt:   start.Add(spec.duration),
		MinAge:   spec.minAge,
		MaxAge:   spec.maxAge,
		Capacity: spec.capacity,
	})
	require.NoError(t, err)
	return event
}

// child registers a child who is age years old on eventStart.
func (h *harness) child(t *testing.T, age int) *entity.Child {
	t.Helper()
	child, err := h.family.CreateChild(context.Background(), &CreateChildRequest{
		GuardianID: h.guardianID,
		FirstName:  "Kid",
		LastName:   "Test",
		BirthDate:  entity.NewDate(eventStart.Year()-age, time.January, 15),
	})
	require.NoError(t, err)
	return child
}

func (h *harness) book(t *testing.T, child *entity.Child, event *entity.Event) *entity.Booking {
	t.Helper()
	booking, err := h.bookings.Create(context.Background(), &CreateBookingRequest{ChildID: child.ID, EventID: event.ID})
	require.NoError(t, err)
	return booking
}

func (h *harness) eventStatus(t *testing.T, eventID int64) entity.EventStatus {
	t.Helper()
	event, err := h.store.Events().GetByID(context.Background(), eventID)
	require.NoError(t, err)
	return event.Status
}

func (h *harness) bookingStatus(t *testing.T, bookingID int64) entity.BookingStatus {
	t.Helper()
	booking, err := h.store.Bookings().GetByID(context.Background(), bookingID)
	require.NoError(t, err)
	return booking.Status
}
