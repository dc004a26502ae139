// Планировщик напоминаний: периодический обход активных водителей и
// сравнение «сейчас» с их последней геоточкой. Долгое молчание — личное
// напоминание; совсем долгое — эскалация в группу диспетчеров, не чаще
// одного раза на окно молчания.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/drivers"
	"github.com/Tehnologistika/GdeGruz/internal/locations"
)

// DriverSource — активные водители (active=true; незарегистрированные id
// в обход не попадают).
type DriverSource interface {
	ListActive(ctx context.Context) ([]drivers.Driver, error)
}

// PointSource — последняя точка каждого активного водителя.
type PointSource interface {
	LastPerActiveDriver(ctx context.Context) (map[int64]locations.Point, error)
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Suppressor — дедупликация эскалаций по окну молчания.
type Suppressor interface {
	Suppressed(ctx context.Context, userID int64, lastPoint time.Time) (bool, error)
	MarkEscalated(ctx context.Context, userID int64, lastPoint time.Time) error
}

// Notifier — доставка напоминаний и эскалаций.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, text string) error
	NotifyDispatchers(ctx context.Context, text string) error
}

// Config — тайминги обхода.
type Config struct {
	SweepInterval    time.Duration
	RemindAfter      time.Duration // T_remind
	EscalateAfter    time.Duration // T_escalate, строго больше T_remind
	RetentionAge     time.Duration // 0 — ретеншн выключен
}

type Sweeper struct {
	logger      *zap.Logger
	cfg         Config
	drivers     DriverSource
	points      PointSource
	escalations Suppressor
	notify      Notifier

	now             func() time.Time
	lastRetentionAt time.Time
}

func New(logger *zap.Logger, cfg Config, d DriverSource, p PointSource, s Suppressor, n Notifier) *Sweeper {
	return &Sweeper{
		logger:      logger,
		cfg:         cfg,
		drivers:     d,
		points:      p,
		escalations: s,
		notify:      n,
		now:         time.Now,
	}
}

// Run крутит обход с фиксированным интервалом до отмены контекста.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.logger.Info("sweeper started",
		zap.Duration("interval", s.cfg.SweepInterval),
		zap.Duration("remind_after", s.cfg.RemindAfter),
		zap.Duration("escalate_after", s.cfg.EscalateAfter),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
			s.maybeCleanup(ctx)
		}
	}
}

// Sweep — один цикл обхода. Сбой по одному водителю не прерывает
// остальных.
func (s *Sweeper) Sweep(ctx context.Context) error {
	active, err := s.drivers.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active drivers: %w", err)
	}
	last, err := s.points.LastPerActiveDriver(ctx)
	if err != nil {
		return fmt.Errorf("last points: %w", err)
	}

	now := s.now()
	for _, d := range active {
		p, ok := last[d.UserID]
		if !ok {
			// ни одной точки — нечего отсчитывать
			continue
		}
		s.sweepDriver(ctx, d, p, now)
	}
	return nil
}

func (s *Sweeper) sweepDriver(ctx context.Context, d drivers.Driver, p locations.Point, now time.Time) {
	if s.notify == nil {
		return
	}
	silence := now.Sub(p.RecordedAt)
	if silence < s.cfg.RemindAfter {
		return
	}

	// напоминание повторяется каждый цикл, пока не придёт новая точка
	if err := s.notify.NotifyUser(ctx, d.UserID,
		"Вы давно не делились местоположением. Нажмите «Поделиться местоположением»."); err != nil {
		s.logger.Warn("reminder failed", zap.Int64("user_id", d.UserID), zap.Error(err))
	}

	if silence < s.cfg.EscalateAfter {
		return
	}

	suppressed, err := s.escalations.Suppressed(ctx, d.UserID, p.RecordedAt)
	if err != nil {
		s.logger.Warn("escalation dedup check failed", zap.Int64("user_id", d.UserID), zap.Error(err))
		return
	}
	if suppressed {
		return
	}

	name := d.Phone
	if d.Name != nil && *d.Name != "" {
		name = fmt.Sprintf("%s (%s)", *d.Name, d.Phone)
	}
	text := fmt.Sprintf("Водитель %s не выходит на связь %s (последняя точка %s)",
		name, silence.Round(time.Minute), p.RecordedAt.Local().Format("02.01 15:04"))
	if err := s.notify.NotifyDispatchers(ctx, text); err != nil {
		s.logger.Warn("escalation failed", zap.Int64("user_id", d.UserID), zap.Error(err))
		return
	}
	if err := s.escalations.MarkEscalated(ctx, d.UserID, p.RecordedAt); err != nil {
		s.logger.Warn("escalation mark failed", zap.Int64("user_id", d.UserID), zap.Error(err))
	}
}

// maybeCleanup раз в сутки чистит точки старше RetentionAge.
func (s *Sweeper) maybeCleanup(ctx context.Context) {
	if s.cfg.RetentionAge <= 0 {
		return
	}
	now := s.now()
	if now.Sub(s.lastRetentionAt) < 24*time.Hour {
		return
	}
	s.lastRetentionAt = now

	n, err := s.points.DeleteOlderThan(ctx, s.cfg.RetentionAge)
	if err != nil {
		s.logger.Warn("location retention cleanup failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("location retention cleanup", zap.Int64("deleted", n))
	}
}
