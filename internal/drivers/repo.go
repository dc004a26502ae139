package drivers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tehnologistika/GdeGruz/internal/phone"
)

var ErrNotFound = errors.New("driver not found")

type Repo struct {
	pg *pgxpool.Pool
}

func NewRepo(pg *pgxpool.Pool) *Repo {
	return &Repo{pg: pg}
}

func (r *Repo) FindByUserID(ctx context.Context, userID int64) (*Driver, error) {
	const q = `
SELECT user_id, phone, name, registered_at, active
FROM drivers
WHERE user_id = $1
LIMIT 1`

	return scanDriver(r.pg.QueryRow(ctx, q, userID))
}

func (r *Repo) FindByPhone(ctx context.Context, rawPhone string) (*Driver, error) {
	const q = `
SELECT user_id, phone, name, registered_at, active
FROM drivers
WHERE phone = $1
LIMIT 1`

	return scanDriver(r.pg.QueryRow(ctx, q, phone.Normalize(rawPhone)))
}

// UserIDByPhone возвращает platform id водителя по номеру или ErrNotFound.
func (r *Repo) UserIDByPhone(ctx context.Context, rawPhone string) (int64, error) {
	const q = `SELECT user_id FROM drivers WHERE phone = $1 LIMIT 1`

	var id int64
	err := r.pg.QueryRow(ctx, q, phone.Normalize(rawPhone)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// UpsertPhone регистрирует водителя по номеру. Телефон — долговечная
// идентичность: если номер уже известен, строка перевешивается на новый
// user_id (перерегистрация с нового аккаунта платформы), иначе создаётся
// новая. Имя не затирается, если новое не передано.
func (r *Repo) UpsertPhone(ctx context.Context, userID int64, rawPhone string, name *string) error {
	norm := phone.Normalize(rawPhone)

	tx, err := r.pg.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Аккаунт мог раньше ходить с другим номером — та строка ему больше
	// не принадлежит и мешает перевесить user_id на строку номера.
	if _, err := tx.Exec(ctx,
		`DELETE FROM drivers WHERE user_id = $1 AND phone <> $2`, userID, norm); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
UPDATE drivers SET
  user_id = $1,
  name    = COALESCE($3, name),
  active  = true
WHERE phone = $2`, userID, norm, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx, `
INSERT INTO drivers (user_id, phone, name, registered_at, active)
VALUES ($1, $2, $3, now(), true)`, userID, norm, name); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) SetName(ctx context.Context, userID int64, name string) error {
	const q = `UPDATE drivers SET name = $2 WHERE user_id = $1`

	tag, err := r.pg.Exec(ctx, q, userID, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive переключает трекинг. Возобновление (flag=true) в той же
// транзакции стирает историю точек водителя: часы молчания стартуют с нуля
// и протухшая эскалация не срабатывает сразу после возврата.
func (r *Repo) SetActive(ctx context.Context, userID int64, flag bool) error {
	tx, err := r.pg.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE drivers SET active = $2 WHERE user_id = $1`, userID, flag)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if flag {
		if _, err := tx.Exec(ctx, `DELETE FROM location_points WHERE user_id = $1`, userID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// IsActive: неизвестный водитель считается неактивным (fail-closed) —
// планировщик не шлёт напоминания незарегистрированным id.
func (r *Repo) IsActive(ctx context.Context, userID int64) (bool, error) {
	const q = `SELECT active FROM drivers WHERE user_id = $1 LIMIT 1`

	var active bool
	err := r.pg.QueryRow(ctx, q, userID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return active, nil
}

// ListActive возвращает водителей с включённым трекингом (для sweep).
func (r *Repo) ListActive(ctx context.Context) ([]Driver, error) {
	const q = `
SELECT user_id, phone, name, registered_at, active
FROM drivers
WHERE active = true
ORDER BY user_id`

	rows, err := r.pg.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.UserID, &d.Phone, &d.Name, &d.RegisteredAt, &d.Active); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Purge жёстко удаляет водителя вместе с историей точек (только явный
// админский вызов).
func (r *Repo) Purge(ctx context.Context, userID int64) error {
	tx, err := r.pg.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM location_points WHERE user_id = $1`, userID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM drivers WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	err := row.Scan(&d.UserID, &d.Phone, &d.Name, &d.RegisteredAt, &d.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}
