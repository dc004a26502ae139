package trips

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tehnologistika/GdeGruz/internal/phone"
)

const tripColumns = `
  trip_id, trip_number, phone, user_id, status,
  loading_address, loading_date, unloading_address, unloading_date, rate,
  created_at, loading_confirmed_at, unloading_confirmed_at,
  delivered_at, completed_at, cancelled_at, curator_id
`

type Repo struct {
	pg     *pgxpool.Pool
	prefix string
}

func NewRepo(pg *pgxpool.Pool, numberPrefix string) *Repo {
	return &Repo{pg: pg, prefix: numberPrefix}
}

// NextNumber выдаёт следующий номер рейса через однострочный счётчик.
// ON CONFLICT-инкремент сериализуется блокировкой строки: два
// конкурентных create никогда не получат одинаковый номер.
func (r *Repo) NextNumber(ctx context.Context) (string, error) {
	const q = `
INSERT INTO trip_counters (prefix, value) VALUES ($1, 1)
ON CONFLICT (prefix) DO UPDATE SET value = trip_counters.value + 1
RETURNING value`

	var seq int64
	if err := r.pg.QueryRow(ctx, q, r.prefix).Scan(&seq); err != nil {
		return "", err
	}
	return FormatNumber(r.prefix, seq), nil
}

// SeedCounter подтягивает счётчик до максимального из уже выданных номеров
// (однократно при старте; для баз, живших до счётчика).
func (r *Repo) SeedCounter(ctx context.Context) error {
	const q = `SELECT trip_number FROM trips WHERE trip_number LIKE $1 || '-%'`

	rows, err := r.pg.Query(ctx, q, r.prefix)
	if err != nil {
		return err
	}
	defer rows.Close()

	var max int64
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return err
		}
		if seq, ok := ParseNumber(r.prefix, number); ok && seq > max {
			max = seq
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	const upsert = `
INSERT INTO trip_counters (prefix, value) VALUES ($1, $2)
ON CONFLICT (prefix) DO UPDATE SET value = GREATEST(trip_counters.value, EXCLUDED.value)`
	_, err = r.pg.Exec(ctx, upsert, r.prefix, max)
	return err
}

// Insert пишет новый рейс; phone уже нормализован вызывающей стороной
// (движком), статус и номер выставлены.
func (r *Repo) Insert(ctx context.Context, t *Trip) error {
	const q = `
INSERT INTO trips (
  trip_number, phone, user_id, status,
  loading_address, loading_date, unloading_address, unloading_date, rate,
  curator_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING trip_id, created_at`

	return r.pg.QueryRow(ctx, q,
		t.TripNumber, t.Phone, t.UserID, t.Status,
		t.LoadingAddress, t.LoadingDate, t.UnloadingAddress, t.UnloadingDate, t.Rate,
		t.CuratorID,
	).Scan(&t.TripID, &t.CreatedAt)
}

func (r *Repo) GetByID(ctx context.Context, tripID int64) (*Trip, error) {
	const q = `SELECT` + tripColumns + `FROM trips WHERE trip_id = $1 LIMIT 1`

	return scanTrip(r.pg.QueryRow(ctx, q, tripID))
}

func (r *Repo) GetByNumber(ctx context.Context, number string) (*Trip, error) {
	const q = `SELECT` + tripColumns + `FROM trips WHERE trip_number = $1 LIMIT 1`

	return scanTrip(r.pg.QueryRow(ctx, q, number))
}

// ListByPhone возвращает рейсы по нормализованному номеру, новые первыми;
// статус — опциональный фильтр.
func (r *Repo) ListByPhone(ctx context.Context, rawPhone string, status *Status) ([]Trip, error) {
	const q = `
SELECT` + tripColumns + `
FROM trips
WHERE phone = $1 AND ($2::text IS NULL OR status = $2)
ORDER BY created_at DESC`

	rows, err := r.pg.Query(ctx, q, phone.Normalize(rawPhone), status)
	if err != nil {
		return nil, err
	}
	return collectTrips(rows)
}

func (r *Repo) ListByUser(ctx context.Context, userID int64, status *Status) ([]Trip, error) {
	const q = `
SELECT` + tripColumns + `
FROM trips
WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)
ORDER BY created_at DESC`

	rows, err := r.pg.Query(ctx, q, userID, status)
	if err != nil {
		return nil, err
	}
	return collectTrips(rows)
}

// ListActive — все незавершённые рейсы для отчёта куратора,
// отсортированы по дате погрузки.
func (r *Repo) ListActive(ctx context.Context) ([]Trip, error) {
	const q = `
SELECT` + tripColumns + `
FROM trips
WHERE status NOT IN ('completed', 'cancelled')
ORDER BY loading_date`

	rows, err := r.pg.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return collectTrips(rows)
}

// ActiveForUser — первый незавершённый рейс водителя (автопривязка
// документов).
func (r *Repo) ActiveForUser(ctx context.Context, userID int64) (*Trip, error) {
	const q = `
SELECT` + tripColumns + `
FROM trips
WHERE user_id = $1 AND status NOT IN ('completed', 'cancelled')
ORDER BY created_at DESC
LIMIT 1`

	return scanTrip(r.pg.QueryRow(ctx, q, userID))
}

// Rebind привязывает user_id ко всем рейсам с этим телефоном: и тем, у
// которых водитель ещё не известен, и незавершённым, оставшимся на старом
// аккаунте после перерегистрации. Завершённые рейсы не трогаются — история
// атрибуции остаётся за тем аккаунтом, который её создал.
func (r *Repo) Rebind(ctx context.Context, rawPhone string, userID int64) ([]Trip, error) {
	const q = `
UPDATE trips SET user_id = $2
WHERE phone = $1
  AND (user_id IS NULL OR (user_id <> $2 AND status NOT IN ('completed', 'cancelled')))
RETURNING` + tripColumns

	rows, err := r.pg.Query(ctx, q, phone.Normalize(rawPhone), userID)
	if err != nil {
		return nil, err
	}
	return collectTrips(rows)
}

// UpdateStatusCAS — условная запись статуса: set status = next where
// status = prev. Ноль строк означает, что конкурент успел раньше и
// прочитанный статус протух. Таймстемп фазы ставится COALESCE — только
// при первом входе, перезапись невозможна.
func (r *Repo) UpdateStatusCAS(ctx context.Context, tripID int64, prev, next Status) (*Trip, error) {
	const q = `
UPDATE trips SET
  status = $3,
  loading_confirmed_at   = CASE WHEN $3 = 'loading'   THEN COALESCE(loading_confirmed_at, now())   ELSE loading_confirmed_at END,
  unloading_confirmed_at = CASE WHEN $3 = 'unloading' THEN COALESCE(unloading_confirmed_at, now()) ELSE unloading_confirmed_at END,
  delivered_at           = CASE WHEN $3 = 'delivered' THEN COALESCE(delivered_at, now())           ELSE delivered_at END,
  completed_at           = CASE WHEN $3 = 'completed' THEN COALESCE(completed_at, now())           ELSE completed_at END,
  cancelled_at           = CASE WHEN $3 = 'cancelled' THEN COALESCE(cancelled_at, now())           ELSE cancelled_at END
WHERE trip_id = $1 AND status = $2
RETURNING` + tripColumns

	t, err := scanTrip(r.pg.QueryRow(ctx, q, tripID, prev, next))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// рейс есть, но статус уже другой — нет, либо рейса нет вовсе;
			// различает вызывающая сторона повторным чтением
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// DetailsUpdate — административные правки куратора; nil-поля не трогаются.
type DetailsUpdate struct {
	Phone            *string
	LoadingAddress   *string
	LoadingDate      *time.Time
	UnloadingAddress *string
	UnloadingDate    *time.Time
	Rate             *float64
}

// UpdateDetails правит реквизиты рейса до терминального статуса.
func (r *Repo) UpdateDetails(ctx context.Context, tripID int64, u DetailsUpdate) (*Trip, error) {
	if u.Phone != nil {
		normalized := phone.Normalize(*u.Phone)
		u.Phone = &normalized
	}

	const q = `
UPDATE trips SET
  phone             = COALESCE($2, phone),
  loading_address   = COALESCE($3, loading_address),
  loading_date      = COALESCE($4, loading_date),
  unloading_address = COALESCE($5, unloading_address),
  unloading_date    = COALESCE($6, unloading_date),
  rate              = COALESCE($7, rate)
WHERE trip_id = $1 AND status NOT IN ('completed', 'cancelled')
RETURNING` + tripColumns

	t, err := scanTrip(r.pg.QueryRow(ctx, q, tripID,
		u.Phone, u.LoadingAddress, u.LoadingDate, u.UnloadingAddress, u.UnloadingDate, u.Rate))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// либо нет рейса, либо он терминальный
			if _, getErr := r.GetByID(ctx, tripID); getErr == nil {
				return nil, ErrTerminal
			}
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func scanTrip(row pgx.Row) (*Trip, error) {
	var t Trip
	err := row.Scan(
		&t.TripID, &t.TripNumber, &t.Phone, &t.UserID, &t.Status,
		&t.LoadingAddress, &t.LoadingDate, &t.UnloadingAddress, &t.UnloadingDate, &t.Rate,
		&t.CreatedAt, &t.LoadingConfirmedAt, &t.UnloadingConfirmedAt,
		&t.DeliveredAt, &t.CompletedAt, &t.CancelledAt, &t.CuratorID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func collectTrips(rows pgx.Rows) ([]Trip, error) {
	defer rows.Close()

	var out []Trip
	for rows.Next() {
		var t Trip
		if err := rows.Scan(
			&t.TripID, &t.TripNumber, &t.Phone, &t.UserID, &t.Status,
			&t.LoadingAddress, &t.LoadingDate, &t.UnloadingAddress, &t.UnloadingDate, &t.Rate,
			&t.CreatedAt, &t.LoadingConfirmedAt, &t.UnloadingConfirmedAt,
			&t.DeliveredAt, &t.CompletedAt, &t.CancelledAt, &t.CuratorID,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
