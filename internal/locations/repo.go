// Лента геоточек: только append, «последняя точка» — max(recorded_at) по
// водителю. Чистится либо ретеншном по возрасту, либо при возобновлении
// трекинга (см. drivers.SetActive).
package locations

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("location not found")

type Point struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	RecordedAt time.Time `json:"recorded_at"`
}

type Repo struct {
	pg *pgxpool.Pool
}

func NewRepo(pg *pgxpool.Pool) *Repo {
	return &Repo{pg: pg}
}

// Save пишет точку; recorded_at приводится к UTC.
func (r *Repo) Save(ctx context.Context, userID int64, lat, lon float64, recordedAt time.Time) error {
	const q = `
INSERT INTO location_points (user_id, lat, lon, recorded_at)
VALUES ($1, $2, $3, $4)`

	_, err := r.pg.Exec(ctx, q, userID, lat, lon, recordedAt.UTC())
	return err
}

func (r *Repo) Last(ctx context.Context, userID int64) (*Point, error) {
	const q = `
SELECT id, user_id, lat, lon, recorded_at
FROM location_points
WHERE user_id = $1
ORDER BY recorded_at DESC
LIMIT 1`

	var p Point
	err := r.pg.QueryRow(ctx, q, userID).Scan(&p.ID, &p.UserID, &p.Lat, &p.Lon, &p.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// LastPerActiveDriver — самая свежая точка каждого активного водителя.
// Водители без единой точки в выборку не попадают.
func (r *Repo) LastPerActiveDriver(ctx context.Context) (map[int64]Point, error) {
	const q = `
SELECT DISTINCT ON (p.user_id) p.id, p.user_id, p.lat, p.lon, p.recorded_at
FROM location_points p
JOIN drivers d ON d.user_id = p.user_id AND d.active = true
ORDER BY p.user_id, p.recorded_at DESC`

	rows, err := r.pg.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]Point)
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.ID, &p.UserID, &p.Lat, &p.Lon, &p.RecordedAt); err != nil {
			return nil, err
		}
		out[p.UserID] = p
	}
	return out, rows.Err()
}

func (r *Repo) DeleteForUser(ctx context.Context, userID int64) error {
	_, err := r.pg.Exec(ctx, `DELETE FROM location_points WHERE user_id = $1`, userID)
	return err
}

// DeleteOlderThan удаляет точки старше age; возвращает число удалённых.
func (r *Repo) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	const q = `DELETE FROM location_points WHERE recorded_at < $1`

	tag, err := r.pg.Exec(ctx, q, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
