package trips

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/drivers"
	"github.com/Tehnologistika/GdeGruz/internal/phone"
)

// Store — операции хранилища рейсов, нужные движку.
type Store interface {
	NextNumber(ctx context.Context) (string, error)
	Insert(ctx context.Context, t *Trip) error
	GetByID(ctx context.Context, tripID int64) (*Trip, error)
	UpdateStatusCAS(ctx context.Context, tripID int64, prev, next Status) (*Trip, error)
	Rebind(ctx context.Context, rawPhone string, userID int64) ([]Trip, error)
}

// Journal — журнал аудита; запись best-effort, никогда не валит мутацию.
type Journal interface {
	BestEffort(ctx context.Context, tripID int64, eventType, description string, createdBy *int64, meta any)
}

// DriverDirectory — реестр водителей для авторизации и побочных эффектов.
type DriverDirectory interface {
	FindByUserID(ctx context.Context, userID int64) (*drivers.Driver, error)
	UserIDByPhone(ctx context.Context, rawPhone string) (int64, error)
	SetActive(ctx context.Context, userID int64, flag bool) error
}

// DocumentChecker — проверка комплекта документов фазы (soft gate).
type DocumentChecker interface {
	CheckPhase(ctx context.Context, tripID int64, phase Phase) (PhaseDocs, error)
}

// Notifier — абстрактный сток уведомлений (реализация — бот-транспорт).
// Все вызовы для движка fire-and-forget: ошибки логируются и не
// пробрасываются.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, text string) error
	NotifyDispatchers(ctx context.Context, text string) error
}

// Publisher — публикация событий рейса для внешних потребителей;
// best-effort, может быть nil.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, v any) error
}

// Engine — машина статусов рейса: легальность переходов, таймстемпы,
// привязка по телефону, атрибуция и аудит каждой мутации.
type Engine struct {
	logger  *zap.Logger
	store   Store
	journal Journal
	drivers DriverDirectory
	docs    DocumentChecker
	notify  Notifier
	pub     Publisher

	curators map[int64]bool
}

func NewEngine(
	logger *zap.Logger,
	store Store,
	journal Journal,
	driverDir DriverDirectory,
	docs DocumentChecker,
	notify Notifier,
	pub Publisher,
	curatorIDs []int64,
) *Engine {
	curators := make(map[int64]bool, len(curatorIDs))
	for _, id := range curatorIDs {
		curators[id] = true
	}
	return &Engine{
		logger:   logger,
		store:    store,
		journal:  journal,
		drivers:  driverDir,
		docs:     docs,
		notify:   notify,
		pub:      pub,
		curators: curators,
	}
}

// IsCurator проверяет allow-list кураторов.
func (e *Engine) IsCurator(userID int64) bool {
	return e.curators[userID]
}

// CreateParams — заявка куратора на новый рейс.
type CreateParams struct {
	Phone            string
	LoadingAddress   string
	LoadingDate      time.Time
	UnloadingAddress string
	UnloadingDate    time.Time
	Rate             float64
	CuratorID        int64
}

// Create заводит рейс: нормализует телефон, резолвит водителя (если уже
// зарегистрирован), выдаёт номер, пишет рейс со статусом assigned и
// событие created.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*Trip, error) {
	if !e.IsCurator(p.CuratorID) {
		return nil, ErrUnauthorized
	}

	normalized := phone.Normalize(p.Phone)
	if len(normalized) < 2 || normalized[0] != '+' {
		return nil, fmt.Errorf("%w: phone %q", ErrValidation, p.Phone)
	}
	if p.LoadingAddress == "" || p.UnloadingAddress == "" {
		return nil, fmt.Errorf("%w: loading and unloading addresses are required", ErrValidation)
	}
	if p.Rate < 0 {
		return nil, fmt.Errorf("%w: rate must not be negative", ErrValidation)
	}

	// Водитель с этим номером мог уже зарегистрироваться — тогда рейс
	// привязывается сразу; иначе телефон остаётся единственным якорем.
	var userID *int64
	id, err := e.drivers.UserIDByPhone(ctx, normalized)
	switch {
	case err == nil:
		userID = &id
	case errors.Is(err, drivers.ErrNotFound):
	default:
		return nil, err
	}

	number, err := e.store.NextNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate trip number: %w", err)
	}

	t := &Trip{
		TripNumber:       number,
		Phone:            normalized,
		UserID:           userID,
		Status:           StatusAssigned,
		LoadingAddress:   p.LoadingAddress,
		LoadingDate:      p.LoadingDate,
		UnloadingAddress: p.UnloadingAddress,
		UnloadingDate:    p.UnloadingDate,
		Rate:             p.Rate,
		CuratorID:        &p.CuratorID,
	}
	if err := e.store.Insert(ctx, t); err != nil {
		return nil, err
	}

	e.journal.BestEffort(ctx, t.TripID, EventCreated,
		fmt.Sprintf("Рейс %s создан", t.TripNumber), &p.CuratorID, nil)
	e.publish(ctx, EventCreated, t)

	if t.UserID != nil {
		e.notifyUser(ctx, *t.UserID,
			fmt.Sprintf("Вам назначен рейс %s: %s → %s", t.TripNumber, t.LoadingAddress, t.UnloadingAddress))
	}
	return t, nil
}

// Advance выполняет переход статуса. Вход в delivered охраняется
// документами: при неполном комплекте возвращается *SoftGateError и
// вызывающая сторона повторяет запрос через ForceAdvance.
func (e *Engine) Advance(ctx context.Context, tripID int64, next Status, actorID int64) (*Trip, error) {
	return e.advance(ctx, tripID, next, actorID, false)
}

// ForceAdvance — тот же переход с явным подтверждением, минуя soft gate.
func (e *Engine) ForceAdvance(ctx context.Context, tripID int64, next Status, actorID int64) (*Trip, error) {
	return e.advance(ctx, tripID, next, actorID, true)
}

// Cancel отменяет рейс из любого нетерминального статуса; повторная отмена —
// no-op (двойные клики не считаются ошибкой).
func (e *Engine) Cancel(ctx context.Context, tripID int64, actorID int64) (*Trip, error) {
	return e.advance(ctx, tripID, StatusCancelled, actorID, false)
}

func (e *Engine) advance(ctx context.Context, tripID int64, next Status, actorID int64, force bool) (*Trip, error) {
	t, err := e.store.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if err := e.authorize(ctx, t, actorID); err != nil {
		return nil, err
	}

	// идемпотентная отмена: ни события, ни ошибки
	if next == StatusCancelled && t.Status == StatusCancelled {
		return t, nil
	}

	if !CanTransition(t.Status, next) {
		return nil, &InvalidTransitionError{Current: t.Status, Attempted: next}
	}

	if NeedsDocumentGate(next) && !force {
		docs, err := e.docs.CheckPhase(ctx, tripID, PhaseUnloading)
		if err != nil {
			// проверка документов не должна блокировать работу при сбое
			e.logger.Warn("phase document check failed", zap.Int64("trip_id", tripID), zap.Error(err))
		} else if !docs.Ready() {
			return nil, &SoftGateError{Phase: PhaseUnloading, Docs: docs}
		}
	}

	prev := t.Status
	updated, err := e.store.UpdateStatusCAS(ctx, tripID, prev, next)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		// CAS не прошёл: конкурент успел раньше — перечитываем и отвечаем
		// фактическим статусом
		fresh, getErr := e.store.GetByID(ctx, tripID)
		if getErr != nil {
			return nil, getErr
		}
		if next == StatusCancelled && fresh.Status == StatusCancelled {
			return fresh, nil
		}
		return nil, &InvalidTransitionError{Current: fresh.Status, Attempted: next}
	}

	actor := actorID
	e.journal.BestEffort(ctx, tripID, EventStatusChanged,
		fmt.Sprintf("Статус изменён на: %s", next), &actor,
		StatusChangedMeta{OldStatus: prev, NewStatus: next, Forced: force})
	if next == StatusActive {
		e.journal.BestEffort(ctx, tripID, EventActivated,
			fmt.Sprintf("Рейс %s подтверждён", updated.TripNumber), &actor, nil)
	}
	e.publish(ctx, EventStatusChanged, updated)

	e.afterTransition(ctx, updated, actorID)
	return updated, nil
}

// afterTransition — побочные эффекты после закоммиченной записи статуса;
// всё best-effort, откатов не бывает.
func (e *Engine) afterTransition(ctx context.Context, t *Trip, actorID int64) {
	switch t.Status {
	case StatusCompleted:
		// рейс закрыт — трекинг водителя выключается
		if t.UserID != nil {
			if err := e.drivers.SetActive(ctx, *t.UserID, false); err != nil {
				e.logger.Warn("stop tracking after completion failed",
					zap.Int64("trip_id", t.TripID), zap.Int64("user_id", *t.UserID), zap.Error(err))
			}
		}
		e.notifyDispatchers(ctx, fmt.Sprintf("Рейс %s завершён", t.TripNumber))
	case StatusCancelled:
		if t.UserID != nil && e.IsCurator(actorID) {
			e.notifyUser(ctx, *t.UserID, fmt.Sprintf("Рейс %s отменён куратором", t.TripNumber))
		}
	case StatusActive:
		if t.UserID != nil && e.IsCurator(actorID) {
			e.notifyUser(ctx, *t.UserID, fmt.Sprintf("Рейс %s активирован", t.TripNumber))
		}
	}
}

// authorize: куратор из allow-list может всё; иначе действующий должен быть
// водителем, чей телефон совпадает с телефоном рейса.
func (e *Engine) authorize(ctx context.Context, t *Trip, actorID int64) error {
	if e.IsCurator(actorID) {
		return nil
	}
	d, err := e.drivers.FindByUserID(ctx, actorID)
	if err != nil {
		if errors.Is(err, drivers.ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	if d.Phone != t.Phone {
		return ErrForbidden
	}
	return nil
}

// BindRegistered вызывается при регистрации водителя (шаринг номера):
// все непривязанные рейсы с этим телефоном получают user_id, водитель
// получает уведомление по каждому.
func (e *Engine) BindRegistered(ctx context.Context, userID int64, rawPhone string) ([]Trip, error) {
	bound, err := e.store.Rebind(ctx, rawPhone, userID)
	if err != nil {
		return nil, err
	}
	for i := range bound {
		t := &bound[i]
		e.journal.BestEffort(ctx, t.TripID, EventRebound,
			fmt.Sprintf("Рейс %s привязан к водителю", t.TripNumber), &userID,
			ReboundMeta{UserID: userID, Phone: t.Phone})
		e.publish(ctx, EventRebound, t)
		e.notifyUser(ctx, userID,
			fmt.Sprintf("Вам назначен рейс %s: %s → %s", t.TripNumber, t.LoadingAddress, t.UnloadingAddress))
	}
	return bound, nil
}

// RequestLocation — куратор запрашивает у водителя геопозицию; факт запроса
// попадает в журнал рейса.
func (e *Engine) RequestLocation(ctx context.Context, tripID int64, curatorID int64) error {
	if !e.IsCurator(curatorID) {
		return ErrUnauthorized
	}
	t, err := e.store.GetByID(ctx, tripID)
	if err != nil {
		return err
	}
	if t.UserID == nil {
		return fmt.Errorf("%w: trip %s has no bound driver", ErrValidation, t.TripNumber)
	}
	e.journal.BestEffort(ctx, tripID, EventLocationRequested,
		"Запрошена геопозиция водителя", &curatorID, nil)
	e.notifyUser(ctx, *t.UserID,
		fmt.Sprintf("Куратор запрашивает вашу геопозицию по рейсу %s", t.TripNumber))
	return nil
}

func (e *Engine) notifyUser(ctx context.Context, userID int64, text string) {
	if e.notify == nil {
		return
	}
	if err := e.notify.NotifyUser(ctx, userID, text); err != nil {
		e.logger.Warn("driver notification failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) notifyDispatchers(ctx context.Context, text string) {
	if e.notify == nil {
		return
	}
	if err := e.notify.NotifyDispatchers(ctx, text); err != nil {
		e.logger.Warn("dispatcher notification failed", zap.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, eventType string, t *Trip) {
	if e.pub == nil {
		return
	}
	if err := e.pub.Publish(ctx, "trip."+eventType, t); err != nil {
		e.logger.Warn("trip event publish failed",
			zap.Int64("trip_id", t.TripID), zap.String("event_type", eventType), zap.Error(err))
	}
}
