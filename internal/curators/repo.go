// Кураторы (диспетчеры): учётки для дашборда с паролем (bcrypt).
// Право на действия в ядре определяется allow-list'ом platform id
// (см. trips.Engine.IsCurator); таблица нужна для входа в веб-панель.
package curators

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tehnologistika/GdeGruz/internal/phone"
)

var (
	ErrNotFound    = errors.New("curator not found")
	ErrBadPassword = errors.New("invalid password")
)

type Curator struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Phone     string    `json:"phone"`
	Name      *string   `json:"name"`
	Password  string    `json:"-"` // bcrypt hash
	CreatedAt time.Time `json:"created_at"`
}

type Repo struct {
	pg *pgxpool.Pool
}

func NewRepo(pg *pgxpool.Pool) *Repo {
	return &Repo{pg: pg}
}

func (r *Repo) FindByPhone(ctx context.Context, rawPhone string) (*Curator, error) {
	const q = `
SELECT id, user_id, phone, name, password, created_at
FROM curators
WHERE phone = $1
LIMIT 1`

	var c Curator
	err := r.pg.QueryRow(ctx, q, phone.Normalize(rawPhone)).
		Scan(&c.ID, &c.UserID, &c.Phone, &c.Name, &c.Password, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create заводит учётку куратора; пароль хэшируется здесь.
func (r *Repo) Create(ctx context.Context, userID int64, rawPhone string, name *string, password string) (*Curator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	const q = `
INSERT INTO curators (user_id, phone, name, password)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`

	c := &Curator{
		UserID:   userID,
		Phone:    phone.Normalize(rawPhone),
		Name:     name,
		Password: string(hash),
	}
	if err := r.pg.QueryRow(ctx, q, c.UserID, c.Phone, c.Name, c.Password).Scan(&c.ID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// VerifyPassword сверяет пароль с bcrypt-хэшем учётки.
func (c *Curator) VerifyPassword(password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(c.Password), []byte(password)); err != nil {
		return ErrBadPassword
	}
	return nil
}
