package documents

import "time"

// Типы документов (как в боте): фото фаз, ТТН, УПД, акт, прочее.
const (
	TypeLoadingPhoto   = "loading_photo"
	TypeUnloadingPhoto = "unloading_photo"
	TypeTTN            = "ttn" // транспортная накладная
	TypeUPD            = "upd" // универсальный передаточный документ (счёт)
	TypeAct            = "act" // акт приёмки
	TypeOther          = "other"
)

// ValidType проверяет тег типа документа.
func ValidType(s string) bool {
	switch s {
	case TypeLoadingPhoto, TypeUnloadingPhoto, TypeTTN, TypeUPD, TypeAct, TypeOther:
		return true
	}
	return false
}

// Document — загруженный водителем документ; trip_id опционален и
// добирается автопривязкой к текущему активному рейсу.
type Document struct {
	DocID         int64     `json:"doc_id"`
	UserID        int64     `json:"user_id"`
	TripID        *int64    `json:"trip_id"`
	DocType       string    `json:"doc_type"`
	FileReference string    `json:"file_reference"`
	FilePath      *string   `json:"file_path"`
	UploadedAt    time.Time `json:"uploaded_at"`
}
