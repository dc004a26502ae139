package scheduler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/drivers"
	"github.com/Tehnologistika/GdeGruz/internal/locations"
)

type memDrivers struct {
	list []drivers.Driver
}

func (m *memDrivers) ListActive(ctx context.Context) ([]drivers.Driver, error) {
	return m.list, nil
}

type memPoints struct {
	last map[int64]locations.Point
}

func (m *memPoints) LastPerActiveDriver(ctx context.Context) (map[int64]locations.Point, error) {
	return m.last, nil
}

func (m *memPoints) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	return 0, nil
}

// memSuppressor повторяет контракт redis-стора: подавление привязано к
// конкретной последней точке, новая точка его сбрасывает.
type memSuppressor struct {
	anchors map[int64]time.Time
}

func newMemSuppressor() *memSuppressor {
	return &memSuppressor{anchors: map[int64]time.Time{}}
}

func (m *memSuppressor) Suppressed(ctx context.Context, userID int64, lastPoint time.Time) (bool, error) {
	anchor, ok := m.anchors[userID]
	if !ok {
		return false, nil
	}
	if !anchor.Equal(lastPoint) {
		delete(m.anchors, userID)
		return false, nil
	}
	return true, nil
}

func (m *memSuppressor) MarkEscalated(ctx context.Context, userID int64, lastPoint time.Time) error {
	m.anchors[userID] = lastPoint
	return nil
}

type memNotifier struct {
	reminders   map[int64]int
	escalations []string
}

func newMemNotifier() *memNotifier {
	return &memNotifier{reminders: map[int64]int{}}
}

func (n *memNotifier) NotifyUser(ctx context.Context, userID int64, text string) error {
	n.reminders[userID]++
	return nil
}

func (n *memNotifier) NotifyDispatchers(ctx context.Context, text string) error {
	n.escalations = append(n.escalations, text)
	return nil
}

func newTestSweeper(d *memDrivers, p *memPoints, sup *memSuppressor, n *memNotifier, now time.Time) *Sweeper {
	s := New(zap.NewNop(), Config{
		SweepInterval: 5 * time.Minute,
		RemindAfter:   2 * time.Hour,
		EscalateAfter: 4 * time.Hour,
	}, d, p, sup, n)
	s.now = func() time.Time { return now }
	return s
}

func TestSweepQuietDriverUntouched(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	name := "Иван"
	d := &memDrivers{list: []drivers.Driver{{UserID: 1, Phone: "+79991234567", Name: &name}}}
	p := &memPoints{last: map[int64]locations.Point{
		1: {UserID: 1, RecordedAt: now.Add(-30 * time.Minute)},
	}}
	n := newMemNotifier()
	s := newTestSweeper(d, p, newMemSuppressor(), n, now)

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n.reminders[1] != 0 || len(n.escalations) != 0 {
		t.Errorf("fresh point: reminders=%d escalations=%d, want 0/0", n.reminders[1], len(n.escalations))
	}
}

func TestSweepReminderWithoutEscalation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d := &memDrivers{list: []drivers.Driver{{UserID: 1, Phone: "+79991234567"}}}
	p := &memPoints{last: map[int64]locations.Point{
		1: {UserID: 1, RecordedAt: now.Add(-3 * time.Hour)},
	}}
	n := newMemNotifier()
	s := newTestSweeper(d, p, newMemSuppressor(), n, now)

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n.reminders[1] != 1 {
		t.Errorf("reminders = %d, want 1", n.reminders[1])
	}
	if len(n.escalations) != 0 {
		t.Errorf("escalations = %d, want 0 (silence below escalate threshold)", len(n.escalations))
	}
}

// Три обхода подряд при одном и том же молчании — ровно одна эскалация;
// напоминания при этом повторяются каждый цикл.
func TestSweepEscalatesOncePerSilenceWindow(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lastPoint := start.Add(-5 * time.Hour)
	d := &memDrivers{list: []drivers.Driver{{UserID: 1, Phone: "+79991234567"}}}
	p := &memPoints{last: map[int64]locations.Point{
		1: {UserID: 1, RecordedAt: lastPoint},
	}}
	n := newMemNotifier()
	sup := newMemSuppressor()
	s := newTestSweeper(d, p, sup, n, start)

	for i := 0; i < 3; i++ {
		s.now = func() time.Time { return start.Add(time.Duration(i) * 5 * time.Minute) }
		if err := s.Sweep(context.Background()); err != nil {
			t.Fatalf("Sweep %d: %v", i, err)
		}
	}

	if len(n.escalations) != 1 {
		t.Fatalf("escalations = %d, want exactly 1", len(n.escalations))
	}
	if n.reminders[1] != 3 {
		t.Errorf("reminders = %d, want 3 (one per sweep)", n.reminders[1])
	}
}

// Новая точка сбрасывает подавление: после очередного долгого молчания
// эскалация приходит снова.
func TestSweepNewPointResetsSuppression(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d := &memDrivers{list: []drivers.Driver{{UserID: 1, Phone: "+79991234567"}}}
	p := &memPoints{last: map[int64]locations.Point{
		1: {UserID: 1, RecordedAt: start.Add(-5 * time.Hour)},
	}}
	n := newMemNotifier()
	sup := newMemSuppressor()
	s := newTestSweeper(d, p, sup, n, start)

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("first Sweep: %v", err)
	}

	// водитель вышел на связь, потом снова замолчал
	later := start.Add(10 * time.Hour)
	p.last[1] = locations.Point{UserID: 1, RecordedAt: later.Add(-5 * time.Hour)}
	s.now = func() time.Time { return later }

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if len(n.escalations) != 2 {
		t.Errorf("escalations = %d, want 2 (new silence window)", len(n.escalations))
	}
}

func TestSweepSkipsDriversWithoutPoints(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d := &memDrivers{list: []drivers.Driver{{UserID: 1, Phone: "+79991234567"}}}
	p := &memPoints{last: map[int64]locations.Point{}}
	n := newMemNotifier()
	s := newTestSweeper(d, p, newMemSuppressor(), n, now)

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n.reminders[1] != 0 || len(n.escalations) != 0 {
		t.Error("driver without points must be skipped")
	}
}
