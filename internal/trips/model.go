package trips

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Trip — строка таблицы trips. Телефон — якорь идентичности: рейс может
// существовать до регистрации водителя, user_id заполняется при
// перепривязке (никаких нулевых сентинелов).
type Trip struct {
	TripID     int64   `json:"trip_id"`
	TripNumber string  `json:"trip_number"`
	Phone      string  `json:"phone"`
	UserID     *int64  `json:"user_id"`
	Status     Status  `json:"status"`

	LoadingAddress   string    `json:"loading_address"`
	LoadingDate      time.Time `json:"loading_date"`
	UnloadingAddress string    `json:"unloading_address"`
	UnloadingDate    time.Time `json:"unloading_date"`
	Rate             float64   `json:"rate"`

	CreatedAt            time.Time  `json:"created_at"`
	LoadingConfirmedAt   *time.Time `json:"loading_confirmed_at"`
	UnloadingConfirmedAt *time.Time `json:"unloading_confirmed_at"`
	DeliveredAt          *time.Time `json:"delivered_at"`
	CompletedAt          *time.Time `json:"completed_at"`
	CancelledAt          *time.Time `json:"cancelled_at"`

	CuratorID *int64 `json:"curator_id"`
}

// Типы событий аудита.
const (
	EventCreated           = "created"
	EventActivated         = "activated"
	EventStatusChanged     = "status_changed"
	EventDocumentUploaded  = "document_uploaded"
	EventLocationRequested = "location_requested"
	EventRebound           = "rebound"
	EventUpdated           = "updated"
)

// Event — запись аудита; только append, никогда не мутируется.
// Metadata хранится как JSONB: типизированные payload'ы ниже при записи,
// непрозрачный JSON при чтении (forward compatibility).
type Event struct {
	ID          uuid.UUID       `json:"id"`
	TripID      int64           `json:"trip_id"`
	Type        string          `json:"event_type"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	CreatedBy   *int64          `json:"created_by"`
	Metadata    json.RawMessage `json:"metadata"`
}

// StatusChangedMeta — payload события status_changed.
type StatusChangedMeta struct {
	OldStatus Status `json:"old_status"`
	NewStatus Status `json:"new_status"`
	Forced    bool   `json:"forced,omitempty"`
}

// ReboundMeta — payload события rebound (регистрация водителя подобрала рейс).
type ReboundMeta struct {
	UserID int64  `json:"user_id"`
	Phone  string `json:"phone"`
}

// DocumentUploadedMeta — payload события document_uploaded.
type DocumentUploadedMeta struct {
	DocID   int64  `json:"doc_id"`
	DocType string `json:"doc_type"`
}

// PhaseDocs — результат проверки комплекта документов фазы.
type PhaseDocs struct {
	PhotoPresent       bool `json:"photo_present"`
	PhotoCount         int  `json:"photo_count"`
	RequiredDocPresent bool `json:"required_doc_present"`
	RequiredDocCount   int  `json:"required_doc_count"`
}

// Ready: фаза закрыта документами, если есть фото и хотя бы один
// обязательный документ.
func (p PhaseDocs) Ready() bool {
	return p.PhotoPresent && p.RequiredDocPresent
}
