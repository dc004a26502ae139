package drivers

import "time"

// Driver — строка таблицы drivers. Телефон — долговременная идентичность;
// user_id платформы может быть перепривязан, если тот же номер
// регистрируется с нового аккаунта.
type Driver struct {
	UserID       int64     `json:"user_id"`
	Phone        string    `json:"phone"`
	Name         *string   `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
	Active       bool      `json:"active"`
}
