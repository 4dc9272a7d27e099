// Package memory is an in-process Store. Writers are serialized by one
// store-wide mutex, which also covers the per-child overlap check that spans
// events. Each transaction works on a copy of the mutable tables and swaps it
// in on success, so a failed unit leaves nothing behind.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"
)

type tables struct {
	events   map[int64]*entity.Event
	bookings map[int64]*entity.Booking
	outbox   map[string]*entity.OutboxMessage

	nextEventID   int64
	nextBookingID int64
}

func (t *tables) clone() *tables {
	c := &tables{
		events:        make(map[int64]*entity.Event, len(t.events)),
		bookings:      make(map[int64]*entity.Booking, len(t.bookings)),
		outbox:        make(map[string]*entity.OutboxMessage, len(t.outbox)),
		nextEventID:   t.nextEventID,
		nextBookingID: t.nextBookingID,
	}
	for id, e := range t.events {
		ev := *e
		c.events[id] = &ev
	}
	for id, b := range t.bookings {
		bk := *b
		c.bookings[id] = &bk
	}
	for id, m := range t.outbox {
		msg := *m
		c.outbox[id] = &msg
	}
	return c
}

type Store struct {
	mu sync.RWMutex

	data      *tables
	guardians map[int64]*entity.Guardian
	children  map[int64]*entity.Child
	audit     []*entity.AuditEntry

	nextGuardianID int64
	nextChildID    int64
	nextAuditID    int64
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		data: &tables{
			events:   make(map[int64]*entity.Event),
			bookings: make(map[int64]*entity.Booking),
			outbox:   make(map[string]*entity.OutboxMessage),
		},
		guardians: make(map[int64]*entity.Guardian),
		children:  make(map[int64]*entity.Child),
	}
}

func (s *Store) InEventTx(ctx context.Context, eventID int64, fn func(tx repository.EventTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrTransientStoreConflict, err)
	}

	work := s.data.clone()
	event, ok := work.events[eventID]
	if !ok {
		return fmt.Errorf("%w: event %d", entity.ErrNotFound, eventID)
	}

	if err := fn(&eventTx{store: s, data: work, event: event}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrTransientStoreConflict, err)
	}
	s.data = work
	return nil
}

func (s *Store) InChildTx(ctx context.Context, childID int64, fn func(tx repository.ChildTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrTransientStoreConflict, err)
	}

	stored, ok := s.children[childID]
	if !ok {
		return fmt.Errorf("%w: child %d", entity.ErrNotFound, childID)
	}
	child := *stored
	tx := &childTx{store: s, data: s.data.clone(), child: &child}
	if err := fn(tx); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrTransientStoreConflict, err)
	}
	s.data = tx.data
	if tx.deleted {
		delete(s.children, childID)
	} else {
		s.children[childID] = tx.child
	}
	return nil
}

func (s *Store) Guardians() repository.GuardianRepository { return guardianRepo{s} }
func (s *Store) Children() repository.ChildRepository     { return childRepo{s} }
func (s *Store) Events() repository.EventRepository       { return eventRepo{s} }
func (s *Store) Bookings() repository.BookingRepository   { return bookingRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository      { return outboxRepo{s} }
func (s *Store) Audit() repository.AuditRepository        { return auditRepo{s} }

func (s *Store) Close() error { return nil }

type eventTx struct {
	store *Store
	data  *tables
	event *entity.Event
}

func (t *eventTx) Event() *entity.Event {
	e := *t.event
	return &e
}

func (t *eventTx) LockChild(ctx context.Context, childID int64) (*entity.Child, error) {
	child, ok := t.store.children[childID]
	if !ok {
		return nil, fmt.Errorf("%w: child %d", entity.ErrNotFound, childID)
	}
	c := *child
	return &c, nil
}

func (t *eventTx) GetBooking(ctx context.Context, id int64) (*entity.Booking, error) {
	b, ok := t.data.bookings[id]
	if !ok || b.EventID != t.event.ID {
		return nil, fmt.Errorf("%w: booking %d in event %d", entity.ErrNotFound, id, t.event.ID)
	}
	bk := *b
	return &bk, nil
}

func (t *eventTx) GetBookingForChild(ctx context.Context, childID int64) (*entity.Booking, error) {
	for _, b := range t.data.bookings {
		if b.EventID == t.event.ID && b.ChildID == childID {
			bk := *b
			return &bk, nil
		}
	}
	return nil, fmt.Errorf("%w: booking for child %d in event %d", entity.ErrNotFound, childID, t.event.ID)
}

func (t *eventTx) CountByStatus(ctx context.Context, status entity.BookingStatus) (int, error) {
	return countBookings(t.data, t.event.ID, status), nil
}

func (t *eventTx) ConfirmedWindows(ctx context.Context, childID int64) ([]entity.Window, error) {
	var windows []entity.Window
	for _, b := range t.data.bookings {
		if b.ChildID != childID || b.Status != entity.BookingStatusConfirmed || b.EventID == t.event.ID {
			continue
		}
		if e, ok := t.data.events[b.EventID]; ok {
			windows = append(windows, e.Window())
		}
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start.Before(windows[j].Start) })
	return windows, nil
}

func (t *eventTx) Waitlist(ctx context.Context) ([]*entity.Booking, error) {
	return t.byStatus(entity.BookingStatusWaitlist), nil
}

func (t *eventTx) Confirmed(ctx context.Context) ([]*entity.Booking, error) {
	return t.byStatus(entity.BookingStatusConfirmed), nil
}

func (t *eventTx) byStatus(status entity.BookingStatus) []*entity.Booking {
	var list []*entity.Booking
	for _, b := range t.data.bookings {
		if b.EventID == t.event.ID && b.Status == status {
			bk := *b
			list = append(list, &bk)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].WaitlistBefore(list[j]) })
	return list
}

func (t *eventTx) CreateBooking(ctx context.Context, booking *entity.Booking) error {
	if _, ok := t.store.children[booking.ChildID]; !ok {
		return fmt.Errorf("%w: child %d", entity.ErrNotFound, booking.ChildID)
	}
	for _, b := range t.data.bookings {
		if b.EventID == t.event.ID && b.ChildID == booking.ChildID {
			return fmt.Errorf("%w: child %d in event %d", entity.ErrDuplicateBooking, booking.ChildID, t.event.ID)
		}
	}

	t.data.nextBookingID++
	booking.ID = t.data.nextBookingID
	booking.EventID = t.event.ID
	bk := *booking
	t.data.bookings[bk.ID] = &bk
	return nil
}

func (t *eventTx) UpdateBookingStatus(ctx context.Context, id int64, status entity.BookingStatus, at time.Time) error {
	b, ok := t.data.bookings[id]
	if !ok || b.EventID != t.event.ID {
		return fmt.Errorf("%w: booking %d", entity.ErrNotFound, id)
	}
	b.Status = status
	b.UpdatedAt = at
	return nil
}

func (t *eventTx) DeleteBooking(ctx context.Context, id int64) error {
	b, ok := t.data.bookings[id]
	if !ok || b.EventID != t.event.ID {
		return fmt.Errorf("%w: booking %d", entity.ErrNotFound, id)
	}
	delete(t.data.bookings, id)
	return nil
}

func (t *eventTx) UpdateEvent(ctx context.Context, capacity int, status entity.EventStatus, at time.Time) error {
	t.event.Capacity = capacity
	t.event.Status = status
	t.event.UpdatedAt = at
	return nil
}

func (t *eventTx) UpdateDetails(ctx context.Context, details *entity.Event, at time.Time) error {
	t.event.Title = details.Title
	t.event.Description = details.Description
	t.event.StartsAt = details.StartsAt
	t.event.EndsAt = details.EndsAt
	t.event.MinAge = details.MinAge
	t.event.MaxAge = details.MaxAge
	t.event.UpdatedAt = at
	return nil
}

func (t *eventTx) DeleteEvent(ctx context.Context) error {
	for _, b := range t.data.bookings {
		if b.EventID == t.event.ID {
			return fmt.Errorf("%w: event %d still has bookings", entity.ErrValidation, t.event.ID)
		}
	}
	delete(t.data.events, t.event.ID)
	return nil
}

func (t *eventTx) AddOutbox(ctx context.Context, msg *entity.OutboxMessage) error {
	if _, exists := t.data.outbox[msg.ID]; exists {
		return fmt.Errorf("outbox message %s already exists", msg.ID)
	}
	m := *msg
	t.data.outbox[m.ID] = &m
	return nil
}

type childTx struct {
	store   *Store
	data    *tables
	child   *entity.Child
	deleted bool
}

func (t *childTx) Child() *entity.Child {
	c := *t.child
	return &c
}

func (t *childTx) ConfirmedEvents(ctx context.Context) ([]*entity.Event, error) {
	var events []*entity.Event
	for _, b := range t.data.bookings {
		if b.ChildID != t.child.ID || b.Status != entity.BookingStatusConfirmed {
			continue
		}
		if e, ok := t.data.events[b.EventID]; ok {
			ev := *e
			events = append(events, &ev)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartsAt.Equal(events[j].StartsAt) {
			return events[i].StartsAt.Before(events[j].StartsAt)
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func (t *childTx) UpdateChild(ctx context.Context, child *entity.Child) error {
	if _, ok := t.store.guardians[child.GuardianID]; !ok {
		return fmt.Errorf("%w: guardian %d", entity.ErrNotFound, child.GuardianID)
	}
	child.ID = t.child.ID
	child.CreatedAt = t.child.CreatedAt
	c := *child
	t.child = &c
	return nil
}

func (t *childTx) DeleteChild(ctx context.Context) error {
	for id, b := range t.data.bookings {
		if b.ChildID == t.child.ID {
			delete(t.data.bookings, id)
		}
	}
	t.deleted = true
	return nil
}

func countBookings(data *tables, eventID int64, status entity.BookingStatus) int {
	n := 0
	for _, b := range data.bookings {
		if b.EventID == eventID && b.Status == status {
			n++
		}
	}
	return n
}

type guardianRepo struct{ s *Store }

func (r guardianRepo) Create(ctx context.Context, guardian *entity.Guardian) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, g := range r.s.guardians {
		if strings.EqualFold(g.Email, guardian.Email) {
			return fmt.Errorf("%w: guardian email %q already registered", entity.ErrValidation, guardian.Email)
		}
	}
	r.s.nextGuardianID++
	guardian.ID = r.s.nextGuardianID
	g := *guardian
	r.s.guardians[g.ID] = &g
	return nil
}

func (r guardianRepo) GetByID(ctx context.Context, id int64) (*entity.Guardian, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	g, ok := r.s.guardians[id]
	if !ok {
		return nil, fmt.Errorf("%w: guardian %d", entity.ErrNotFound, id)
	}
	out := *g
	return &out, nil
}

func (r guardianRepo) Update(ctx context.Context, guardian *entity.Guardian) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.guardians[guardian.ID]
	if !ok {
		return fmt.Errorf("%w: guardian %d", entity.ErrNotFound, guardian.ID)
	}
	for id, g := range r.s.guardians {
		if id != guardian.ID && strings.EqualFold(g.Email, guardian.Email) {
			return fmt.Errorf("%w: guardian email %q already registered", entity.ErrValidation, guardian.Email)
		}
	}
	stored.Email = guardian.Email
	stored.Name = guardian.Name
	stored.TelegramID = guardian.TelegramID
	return nil
}

func (r guardianRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.guardians[id]; !ok {
		return fmt.Errorf("%w: guardian %d", entity.ErrNotFound, id)
	}
	for _, c := range r.s.children {
		if c.GuardianID == id {
			return fmt.Errorf("%w: guardian %d still has children", entity.ErrValidation, id)
		}
	}
	delete(r.s.guardians, id)
	return nil
}

type childRepo struct{ s *Store }

func (r childRepo) Create(ctx context.Context, child *entity.Child) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.guardians[child.GuardianID]; !ok {
		return fmt.Errorf("%w: guardian %d", entity.ErrNotFound, child.GuardianID)
	}
	r.s.nextChildID++
	child.ID = r.s.nextChildID
	c := *child
	r.s.children[c.ID] = &c
	return nil
}

func (r childRepo) GetByID(ctx context.Context, id int64) (*entity.Child, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.children[id]
	if !ok {
		return nil, fmt.Errorf("%w: child %d", entity.ErrNotFound, id)
	}
	out := *c
	return &out, nil
}

type eventRepo struct{ s *Store }

func (r eventRepo) Create(ctx context.Context, event *entity.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.data.nextEventID++
	event.ID = r.s.data.nextEventID
	e := *event
	r.s.data.events[e.ID] = &e
	return nil
}

func (r eventRepo) GetByID(ctx context.Context, id int64) (*entity.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.data.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %d", entity.ErrNotFound, id)
	}
	out := *e
	return &out, nil
}

func (r eventRepo) GetAll(ctx context.Context) ([]*entity.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	events := make([]*entity.Event, 0, len(r.s.data.events))
	for _, e := range r.s.data.events {
		ev := *e
		events = append(events, &ev)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartsAt.Equal(events[j].StartsAt) {
			return events[i].StartsAt.Before(events[j].StartsAt)
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

type bookingRepo struct{ s *Store }

func (r bookingRepo) GetByID(ctx context.Context, id int64) (*entity.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.data.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %d", entity.ErrNotFound, id)
	}
	out := *b
	return &out, nil
}

func (r bookingRepo) GetByEventID(ctx context.Context, eventID int64) ([]*entity.Booking, error) {
	list := r.filter(func(b *entity.Booking) bool { return b.EventID == eventID })
	sort.Slice(list, func(i, j int) bool {
		if list[i].Status != list[j].Status {
			return list[i].Status == entity.BookingStatusConfirmed
		}
		return list[i].WaitlistBefore(list[j])
	})
	return list, nil
}

func (r bookingRepo) GetByChildID(ctx context.Context, childID int64) ([]*entity.Booking, error) {
	list := r.filter(func(b *entity.Booking) bool { return b.ChildID == childID })
	sort.Slice(list, func(i, j int) bool { return list[i].WaitlistBefore(list[j]) })
	return list, nil
}

func (r bookingRepo) CountByEventAndStatus(ctx context.Context, eventID int64, status entity.BookingStatus) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return countBookings(r.s.data, eventID, status), nil
}

func (r bookingRepo) filter(keep func(*entity.Booking) bool) []*entity.Booking {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var list []*entity.Booking
	for _, b := range r.s.data.bookings {
		if keep(b) {
			bk := *b
			list = append(list, &bk)
		}
	}
	return list
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) GetPending(ctx context.Context, limit int) ([]*entity.OutboxMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var pending []*entity.OutboxMessage
	for _, m := range r.s.data.outbox {
		if m.DeliveredAt == nil {
			msg := *m
			pending = append(pending, &msg)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r outboxRepo) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.data.outbox[id]
	if !ok || m.DeliveredAt != nil {
		return fmt.Errorf("%w: pending outbox message %s", entity.ErrNotFound, id)
	}
	m.Attempts++
	m.DeliveredAt = &at
	return nil
}

func (r outboxRepo) MarkFailed(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if m, ok := r.s.data.outbox[id]; ok {
		m.Attempts++
	}
	return nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Create(ctx context.Context, entry *entity.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextAuditID++
	entry.ID = r.s.nextAuditID
	e := *entry
	r.s.audit = append(r.s.audit, &e)
	return nil
}

func (r auditRepo) List(ctx context.Context, filter repository.AuditFilter) ([]*entity.AuditEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	actor := strings.ToLower(filter.Actor)
	var out []*entity.AuditEntry
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		e := r.s.audit[i]
		switch {
		case filter.Action != "" && e.Action != filter.Action:
			continue
		case actor != "" && !strings.Contains(strings.ToLower(e.Actor), actor):
			continue
		case !filter.From.IsZero() && e.CreatedAt.Before(filter.From):
			continue
		case !filter.To.IsZero() && !e.CreatedAt.Before(filter.To):
			continue
		}
		entry := *e
		out = append(out, &entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r auditRepo) GetByTarget(ctx context.Context, targetID int64) ([]*entity.AuditEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*entity.AuditEntry
	for _, e := range r.s.audit {
		if e.TargetID == targetID {
			entry := *e
			out = append(out, &entry)
		}
	}
	return out, nil
}
