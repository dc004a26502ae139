package trips

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/drivers"
	"github.com/Tehnologistika/GdeGruz/internal/phone"
)

// fakeStore повторяет контракт репозитория в памяти, включая CAS-семантику
// и write-once таймстемпы.
type fakeStore struct {
	trips  map[int64]*Trip
	nextID int64
	seq    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{trips: map[int64]*Trip{}}
}

func (s *fakeStore) NextNumber(ctx context.Context) (string, error) {
	s.seq++
	return FormatNumber("TH", s.seq), nil
}

func (s *fakeStore) Insert(ctx context.Context, t *Trip) error {
	s.nextID++
	t.TripID = s.nextID
	t.CreatedAt = time.Now().UTC()
	cp := *t
	s.trips[t.TripID] = &cp
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, tripID int64) (*Trip, error) {
	t, ok := s.trips[tripID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) UpdateStatusCAS(ctx context.Context, tripID int64, prev, next Status) (*Trip, error) {
	t, ok := s.trips[tripID]
	if !ok || t.Status != prev {
		return nil, ErrNotFound
	}
	t.Status = next
	now := time.Now().UTC()
	stamp := func(dst **time.Time) {
		if *dst == nil {
			v := now
			*dst = &v
		}
	}
	switch next {
	case StatusLoading:
		stamp(&t.LoadingConfirmedAt)
	case StatusUnloading:
		stamp(&t.UnloadingConfirmedAt)
	case StatusDelivered:
		stamp(&t.DeliveredAt)
	case StatusCompleted:
		stamp(&t.CompletedAt)
	case StatusCancelled:
		stamp(&t.CancelledAt)
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) Rebind(ctx context.Context, rawPhone string, userID int64) ([]Trip, error) {
	normalized := phone.Normalize(rawPhone)
	var bound []Trip
	for _, t := range s.trips {
		if t.Phone != normalized {
			continue
		}
		rebind := t.UserID == nil || (*t.UserID != userID && !t.Status.Terminal())
		if !rebind {
			continue
		}
		uid := userID
		t.UserID = &uid
		bound = append(bound, *t)
	}
	return bound, nil
}

type journalEntry struct {
	TripID int64
	Type   string
}

type fakeJournal struct {
	entries []journalEntry
}

func (j *fakeJournal) BestEffort(ctx context.Context, tripID int64, eventType, description string, createdBy *int64, meta any) {
	j.entries = append(j.entries, journalEntry{TripID: tripID, Type: eventType})
}

func (j *fakeJournal) count(eventType string) int {
	n := 0
	for _, e := range j.entries {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type fakeDrivers struct {
	byID     map[int64]*drivers.Driver
	inactive map[int64]bool
}

func newFakeDrivers() *fakeDrivers {
	return &fakeDrivers{byID: map[int64]*drivers.Driver{}, inactive: map[int64]bool{}}
}

func (d *fakeDrivers) add(userID int64, rawPhone string) {
	d.byID[userID] = &drivers.Driver{UserID: userID, Phone: phone.Normalize(rawPhone), Active: true}
}

func (d *fakeDrivers) FindByUserID(ctx context.Context, userID int64) (*drivers.Driver, error) {
	dr, ok := d.byID[userID]
	if !ok {
		return nil, drivers.ErrNotFound
	}
	return dr, nil
}

func (d *fakeDrivers) UserIDByPhone(ctx context.Context, rawPhone string) (int64, error) {
	normalized := phone.Normalize(rawPhone)
	for _, dr := range d.byID {
		if dr.Phone == normalized {
			return dr.UserID, nil
		}
	}
	return 0, drivers.ErrNotFound
}

func (d *fakeDrivers) SetActive(ctx context.Context, userID int64, flag bool) error {
	if !flag {
		d.inactive[userID] = true
	} else {
		delete(d.inactive, userID)
	}
	return nil
}

type fakeDocs struct {
	docs PhaseDocs
}

func (f *fakeDocs) CheckPhase(ctx context.Context, tripID int64, phase Phase) (PhaseDocs, error) {
	return f.docs, nil
}

type fakeNotifier struct {
	toUsers       map[int64][]string
	toDispatchers []string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{toUsers: map[int64][]string{}}
}

func (n *fakeNotifier) NotifyUser(ctx context.Context, userID int64, text string) error {
	n.toUsers[userID] = append(n.toUsers[userID], text)
	return nil
}

func (n *fakeNotifier) NotifyDispatchers(ctx context.Context, text string) error {
	n.toDispatchers = append(n.toDispatchers, text)
	return nil
}

const curatorID int64 = 100

type fixture struct {
	store   *fakeStore
	journal *fakeJournal
	drivers *fakeDrivers
	docs    *fakeDocs
	notify  *fakeNotifier
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   newFakeStore(),
		journal: &fakeJournal{},
		drivers: newFakeDrivers(),
		docs:    &fakeDocs{docs: PhaseDocs{PhotoPresent: true, RequiredDocPresent: true, PhotoCount: 1, RequiredDocCount: 1}},
		notify:  newFakeNotifier(),
	}
	f.engine = NewEngine(zap.NewNop(), f.store, f.journal, f.drivers, f.docs, f.notify, nil, []int64{curatorID})
	return f
}

func (f *fixture) createTrip(t *testing.T, rawPhone string) *Trip {
	t.Helper()
	trip, err := f.engine.Create(context.Background(), CreateParams{
		Phone:            rawPhone,
		LoadingAddress:   "Москва, Ленинградское ш. 1",
		LoadingDate:      time.Now().Add(24 * time.Hour),
		UnloadingAddress: "Санкт-Петербург, Обводный канал 5",
		UnloadingDate:    time.Now().Add(48 * time.Hour),
		Rate:             85000,
		CuratorID:        curatorID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return trip
}

func TestCreateNormalizesPhone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	trip := f.createTrip(t, "8 (999) 123-45-67")

	if trip.Phone != "+79991234567" {
		t.Errorf("phone = %q, want +79991234567", trip.Phone)
	}
	if trip.Status != StatusAssigned {
		t.Errorf("status = %s, want assigned", trip.Status)
	}
	if !strings.HasPrefix(trip.TripNumber, "TH-") {
		t.Errorf("trip number %q lacks prefix", trip.TripNumber)
	}
	if trip.UserID != nil {
		t.Error("unregistered phone must leave user_id unset")
	}
	if got := f.journal.count(EventCreated); got != 1 {
		t.Errorf("created events = %d, want 1", got)
	}
}

func TestCreateBindsRegisteredDriver(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.drivers.add(555, "+79991234567")

	trip := f.createTrip(t, "89991234567")

	if trip.UserID == nil || *trip.UserID != 555 {
		t.Fatalf("user_id = %v, want 555", trip.UserID)
	}
	if len(f.notify.toUsers[555]) != 1 {
		t.Errorf("driver notifications = %d, want 1", len(f.notify.toUsers[555]))
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Create(ctx, CreateParams{Phone: "+79991234567", CuratorID: 999}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-curator create: err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.engine.Create(ctx, CreateParams{Phone: "abc", CuratorID: curatorID}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad phone: err = %v, want ErrValidation", err)
	}
	if _, err := f.engine.Create(ctx, CreateParams{Phone: "+79991234567", CuratorID: curatorID}); !errors.Is(err, ErrValidation) {
		t.Errorf("missing addresses: err = %v, want ErrValidation", err)
	}
}

func TestAdvanceHappyPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	trip := f.createTrip(t, "+79991234567")

	chain := []Status{StatusActive, StatusLoading, StatusInTransit, StatusUnloading, StatusDelivered, StatusCompleted}
	for _, next := range chain {
		var err error
		trip, err = f.engine.Advance(ctx, trip.TripID, next, curatorID)
		if err != nil {
			t.Fatalf("Advance to %s: %v", next, err)
		}
		if trip.Status != next {
			t.Fatalf("status = %s, want %s", trip.Status, next)
		}
	}

	if trip.LoadingConfirmedAt == nil || trip.UnloadingConfirmedAt == nil ||
		trip.DeliveredAt == nil || trip.CompletedAt == nil {
		t.Error("phase timestamps must be set along the chain")
	}
	if trip.CancelledAt != nil {
		t.Error("cancelled_at must stay empty on a completed trip")
	}
	// по одному status_changed на переход и отдельное activated
	if got := f.journal.count(EventStatusChanged); got != len(chain) {
		t.Errorf("status_changed events = %d, want %d", got, len(chain))
	}
	if got := f.journal.count(EventActivated); got != 1 {
		t.Errorf("activated events = %d, want 1", got)
	}
}

func TestInvalidTransitionLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	trip := f.createTrip(t, "+79991234567")

	_, err := f.engine.Advance(ctx, trip.TripID, StatusInTransit, curatorID)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if invalid.Current != StatusAssigned {
		t.Errorf("Current = %s, want assigned", invalid.Current)
	}

	fresh, _ := f.store.GetByID(ctx, trip.TripID)
	if fresh.Status != StatusAssigned {
		t.Errorf("status mutated to %s on illegal transition", fresh.Status)
	}
	if fresh.LoadingConfirmedAt != nil || fresh.DeliveredAt != nil {
		t.Error("timestamps mutated on illegal transition")
	}
}

func TestTimestampWriteOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	trip := f.createTrip(t, "+79991234567")

	for _, next := range []Status{StatusActive, StatusLoading} {
		if _, err := f.engine.Advance(ctx, trip.TripID, next, curatorID); err != nil {
			t.Fatalf("Advance to %s: %v", next, err)
		}
	}
	first, _ := f.store.GetByID(ctx, trip.TripID)
	if first.LoadingConfirmedAt == nil {
		t.Fatal("loading_confirmed_at not set")
	}
	stamp := *first.LoadingConfirmedAt

	// искусственно гоняем статус назад и снова в loading: таймстемп не
	// должен перезаписаться
	f.store.trips[trip.TripID].Status = StatusActive
	time.Sleep(5 * time.Millisecond)
	if _, err := f.engine.Advance(ctx, trip.TripID, StatusLoading, curatorID); err != nil {
		t.Fatalf("second Advance to loading: %v", err)
	}
	second, _ := f.store.GetByID(ctx, trip.TripID)
	if !second.LoadingConfirmedAt.Equal(stamp) {
		t.Errorf("loading_confirmed_at rewritten: %v -> %v", stamp, *second.LoadingConfirmedAt)
	}
}

func TestCompletionSideEffects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.drivers.add(777, "+79991234567")
	ctx := context.Background()
	trip := f.createTrip(t, "+79991234567")

	for _, next := range []Status{StatusActive, StatusLoading, StatusInTransit, StatusUnloading, StatusDelivered, StatusCompleted} {
		if _, err := f.engine.Advance(ctx, trip.TripID, next, curatorID); err != nil {
			t.Fatalf("Advance to %s: %v", next, err)
		}
	}

	if !f.drivers.inactive[777] {
		t.Error("driver tracking must stop after completion")
	}
	if len(f.notify.toDispatchers) == 0 {
		t.Error("dispatchers must be notified about completion")
	}
}

func TestCancelIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	trip := f.createTrip(t, "+79991234567")

	if _, err := f.engine.Cancel(ctx, trip.TripID, curatorID); err != nil {
		t.Fatalf("first Cancel: %v", err)
	}
	got, err := f.engine.Cancel(ctx, trip.TripID, curatorID)
	if err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if n := f.journal.count(EventStatusChanged); n != 1 {
		t.Errorf("status_changed events = %d, want 1 (repeat cancel is a no-op)", n)
	}
}

func TestCancelFromTerminalForbidden(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	trip := f.createTrip(t, "+79991234567")

	for _, next := range []Status{StatusActive, StatusLoading, StatusInTransit, StatusUnloading, StatusDelivered, StatusCompleted} {
		if _, err := f.engine.Advance(ctx, trip.TripID, next, curatorID); err != nil {
			t.Fatalf("Advance to %s: %v", next, err)
		}
	}
	_, err := f.engine.Cancel(ctx, trip.TripID, curatorID)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("cancel of completed trip: err = %v, want InvalidTransitionError", err)
	}
}

func TestDriverAuthorization(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.drivers.add(555, "+79991234567")
	f.drivers.add(666, "+79990000000")
	ctx := context.Background()
	trip := f.createTrip(t, "+79991234567")

	// чужой водитель
	if _, err := f.engine.Advance(ctx, trip.TripID, StatusActive, 666); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign driver: err = %v, want ErrForbidden", err)
	}
	// незарегистрированный актор
	if _, err := f.engine.Advance(ctx, trip.TripID, StatusActive, 12345); !errors.Is(err, ErrForbidden) {
		t.Errorf("unknown actor: err = %v, want ErrForbidden", err)
	}
	// свой водитель
	if _, err := f.engine.Advance(ctx, trip.TripID, StatusActive, 555); err != nil {
		t.Errorf("bound driver: %v", err)
	}
}

func TestSoftGateThenForce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.docs.docs = PhaseDocs{PhotoPresent: false, RequiredDocPresent: false}
	ctx := context.Background()
	trip := f.createTrip(t, "+79991234567")

	for _, next := range []Status{StatusActive, StatusLoading, StatusInTransit, StatusUnloading} {
		if _, err := f.engine.Advance(ctx, trip.TripID, next, curatorID); err != nil {
			t.Fatalf("Advance to %s: %v", next, err)
		}
	}

	_, err := f.engine.Advance(ctx, trip.TripID, StatusDelivered, curatorID)
	var gate *SoftGateError
	if !errors.As(err, &gate) {
		t.Fatalf("err = %v, want SoftGateError", err)
	}
	if gate.Phase != PhaseUnloading {
		t.Errorf("gate phase = %s, want unloading", gate.Phase)
	}
	fresh, _ := f.store.GetByID(ctx, trip.TripID)
	if fresh.Status != StatusUnloading {
		t.Errorf("soft gate must not mutate status, got %s", fresh.Status)
	}

	forced, err := f.engine.ForceAdvance(ctx, trip.TripID, StatusDelivered, curatorID)
	if err != nil {
		t.Fatalf("ForceAdvance: %v", err)
	}
	if forced.Status != StatusDelivered || forced.DeliveredAt == nil {
		t.Errorf("forced trip: status %s, delivered_at %v", forced.Status, forced.DeliveredAt)
	}
}

func TestBindRegistered(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first := f.createTrip(t, "+79991234567")
	second := f.createTrip(t, "89991234567")
	other := f.createTrip(t, "+79990000000")

	bound, err := f.engine.BindRegistered(ctx, 555, "8 (999) 123-45-67")
	if err != nil {
		t.Fatalf("BindRegistered: %v", err)
	}
	if len(bound) != 2 {
		t.Fatalf("bound %d trips, want 2", len(bound))
	}
	for _, id := range []int64{first.TripID, second.TripID} {
		got, _ := f.store.GetByID(ctx, id)
		if got.UserID == nil || *got.UserID != 555 {
			t.Errorf("trip %d not bound", id)
		}
	}
	untouched, _ := f.store.GetByID(ctx, other.TripID)
	if untouched.UserID != nil {
		t.Error("trip with a different phone must stay unbound")
	}
	if len(f.notify.toUsers[555]) != 2 {
		t.Errorf("driver notifications = %d, want 2", len(f.notify.toUsers[555]))
	}
	if got := f.journal.count(EventRebound); got != 2 {
		t.Errorf("rebound events = %d, want 2", got)
	}
}

func TestBindRegisteredMovesTripsToNewAccount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.drivers.add(500, "+79991234567")
	ctx := context.Background()

	// первый рейс довозим до конца на старом аккаунте
	finished := f.createTrip(t, "+79991234567")
	for _, next := range []Status{StatusActive, StatusLoading, StatusInTransit, StatusUnloading, StatusDelivered, StatusCompleted} {
		if _, err := f.engine.Advance(ctx, finished.TripID, next, curatorID); err != nil {
			t.Fatalf("Advance to %s: %v", next, err)
		}
	}
	inflight := f.createTrip(t, "+79991234567")

	// тот же номер пришёл с нового аккаунта платформы
	bound, err := f.engine.BindRegistered(ctx, 600, "+79991234567")
	if err != nil {
		t.Fatalf("BindRegistered: %v", err)
	}
	if len(bound) != 1 {
		t.Fatalf("bound %d trips, want 1", len(bound))
	}

	got, _ := f.store.GetByID(ctx, inflight.TripID)
	if got.UserID == nil || *got.UserID != 600 {
		t.Errorf("in-flight trip user_id = %v, want 600", got.UserID)
	}
	old, _ := f.store.GetByID(ctx, finished.TripID)
	if old.UserID == nil || *old.UserID != 500 {
		t.Errorf("completed trip user_id = %v, must stay 500", old.UserID)
	}
}

func TestCancelOfCancelledTripStillAuthorized(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.drivers.add(666, "+79990000000")
	ctx := context.Background()
	trip := f.createTrip(t, "+79991234567")

	if _, err := f.engine.Cancel(ctx, trip.TripID, curatorID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// чужой водитель не должен получить рейс даже через no-op отмену
	if _, err := f.engine.Cancel(ctx, trip.TripID, 666); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign driver cancel of cancelled trip: err = %v, want ErrForbidden", err)
	}
}

func TestRequestLocation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.drivers.add(555, "+79991234567")
	ctx := context.Background()
	trip := f.createTrip(t, "+79991234567")

	if err := f.engine.RequestLocation(ctx, trip.TripID, 555); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("driver request: err = %v, want ErrUnauthorized", err)
	}
	if err := f.engine.RequestLocation(ctx, trip.TripID, curatorID); err != nil {
		t.Fatalf("RequestLocation: %v", err)
	}
	if got := f.journal.count(EventLocationRequested); got != 1 {
		t.Errorf("location_requested events = %d, want 1", got)
	}
	// +1 к уведомлению о назначении рейса
	if len(f.notify.toUsers[555]) != 2 {
		t.Errorf("driver notifications = %d, want 2", len(f.notify.toUsers[555]))
	}
}
