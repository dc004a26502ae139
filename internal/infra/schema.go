package infra

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema делает сервис самодостаточным:
// - нет таблиц -> создаёт;
// - таблицы есть -> ничего не ломает (только IF NOT EXISTS, без DROP).
// Полные миграции с down-ветками живут в migrations/ (cmd/migrate).
func EnsureSchema(ctx context.Context, pg *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS drivers (
			user_id       BIGINT PRIMARY KEY,
			phone         TEXT NOT NULL UNIQUE,
			name          TEXT NULL,
			registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			active        BOOLEAN NOT NULL DEFAULT true
		)`,
		`CREATE INDEX IF NOT EXISTS idx_drivers_phone ON drivers (phone)`,

		`CREATE TABLE IF NOT EXISTS location_points (
			id          BIGSERIAL PRIMARY KEY,
			user_id     BIGINT NOT NULL,
			lat         DOUBLE PRECISION NOT NULL,
			lon         DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_location_points_user_ts
			ON location_points (user_id, recorded_at DESC)`,

		`CREATE TABLE IF NOT EXISTS trip_counters (
			prefix TEXT PRIMARY KEY,
			value  BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS trips (
			trip_id                BIGSERIAL PRIMARY KEY,
			trip_number            TEXT NOT NULL UNIQUE,
			phone                  TEXT NOT NULL,
			user_id                BIGINT NULL,
			loading_address        TEXT NOT NULL,
			loading_date           TIMESTAMPTZ NOT NULL,
			unloading_address      TEXT NOT NULL,
			unloading_date         TIMESTAMPTZ NOT NULL,
			rate                   NUMERIC(12,2) NOT NULL DEFAULT 0,
			status                 TEXT NOT NULL DEFAULT 'assigned',
			created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
			loading_confirmed_at   TIMESTAMPTZ NULL,
			unloading_confirmed_at TIMESTAMPTZ NULL,
			delivered_at           TIMESTAMPTZ NULL,
			completed_at           TIMESTAMPTZ NULL,
			cancelled_at           TIMESTAMPTZ NULL,
			curator_id             BIGINT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_phone ON trips (phone)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_user ON trips (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_status ON trips (status)`,

		`CREATE TABLE IF NOT EXISTS trip_events (
			id          UUID PRIMARY KEY,
			trip_id     BIGINT NOT NULL REFERENCES trips(trip_id),
			event_type  TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_by  BIGINT NULL,
			metadata    JSONB NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trip_events_trip
			ON trip_events (trip_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS documents (
			doc_id         BIGSERIAL PRIMARY KEY,
			user_id        BIGINT NOT NULL,
			trip_id        BIGINT NULL REFERENCES trips(trip_id),
			doc_type       TEXT NOT NULL,
			file_reference TEXT NOT NULL,
			file_path      TEXT NULL,
			uploaded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_trip ON documents (trip_id)`,

		`CREATE TABLE IF NOT EXISTS curators (
			id         BIGSERIAL PRIMARY KEY,
			user_id    BIGINT NOT NULL UNIQUE,
			phone      TEXT NOT NULL UNIQUE,
			name       TEXT NULL,
			password   TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, q := range statements {
		if _, err := pg.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
