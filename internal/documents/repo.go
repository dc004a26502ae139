package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/trips"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidType = errors.New("invalid document type")
)

// TripEventSink — журнал рейса; реализуется trips.EventLog. Запись события
// о загрузке документа best-effort: её сбой не откатывает сохранение.
type TripEventSink interface {
	LogEvent(ctx context.Context, tripID int64, eventType, description string, createdBy *int64, meta any) error
}

type Repo struct {
	pg     *pgxpool.Pool
	events TripEventSink
	logger *zap.Logger
}

func NewRepo(pg *pgxpool.Pool, events TripEventSink, logger *zap.Logger) *Repo {
	return &Repo{pg: pg, events: events, logger: logger}
}

// SaveParams — метаданные загружаемого документа. TripID nil означает
// «привязать к текущему активному рейсу водителя».
type SaveParams struct {
	UserID        int64
	TripID        *int64
	DocType       string
	FileReference string
	FilePath      *string
}

func (r *Repo) Save(ctx context.Context, p SaveParams) (*Document, error) {
	if !ValidType(p.DocType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, p.DocType)
	}

	tripID := p.TripID
	if tripID == nil {
		if id, err := r.ActiveTripFor(ctx, p.UserID); err == nil {
			tripID = &id
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	const q = `
INSERT INTO documents (user_id, trip_id, doc_type, file_reference, file_path)
VALUES ($1, $2, $3, $4, $5)
RETURNING doc_id, uploaded_at`

	d := &Document{
		UserID:        p.UserID,
		TripID:        tripID,
		DocType:       p.DocType,
		FileReference: p.FileReference,
		FilePath:      p.FilePath,
	}
	if err := r.pg.QueryRow(ctx, q, d.UserID, d.TripID, d.DocType, d.FileReference, d.FilePath).
		Scan(&d.DocID, &d.UploadedAt); err != nil {
		return nil, err
	}

	if d.TripID != nil && r.events != nil {
		uploader := d.UserID
		err := r.events.LogEvent(ctx, *d.TripID, trips.EventDocumentUploaded,
			fmt.Sprintf("Загружен документ: %s", d.DocType), &uploader,
			trips.DocumentUploadedMeta{DocID: d.DocID, DocType: d.DocType})
		if err != nil {
			r.logger.Warn("document upload event failed",
				zap.Int64("doc_id", d.DocID), zap.Int64("trip_id", *d.TripID), zap.Error(err))
		}
	}
	return d, nil
}

// ActiveTripFor — id первого незавершённого рейса водителя.
func (r *Repo) ActiveTripFor(ctx context.Context, userID int64) (int64, error) {
	const q = `
SELECT trip_id FROM trips
WHERE user_id = $1 AND status NOT IN ('completed', 'cancelled')
ORDER BY created_at DESC
LIMIT 1`

	var id int64
	err := r.pg.QueryRow(ctx, q, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// CheckPhase считает документы фазы: фото + обязательный документ
// (погрузка — ТТН, выгрузка — УПД). Только этим гейтится переход в
// delivered.
func (r *Repo) CheckPhase(ctx context.Context, tripID int64, phase trips.Phase) (trips.PhaseDocs, error) {
	photoType, requiredType := TypeLoadingPhoto, TypeTTN
	if phase == trips.PhaseUnloading {
		photoType, requiredType = TypeUnloadingPhoto, TypeUPD
	}

	const q = `
SELECT
  count(*) FILTER (WHERE doc_type = $2),
  count(*) FILTER (WHERE doc_type = $3)
FROM documents
WHERE trip_id = $1`

	var photos, required int
	if err := r.pg.QueryRow(ctx, q, tripID, photoType, requiredType).Scan(&photos, &required); err != nil {
		return trips.PhaseDocs{}, err
	}
	return trips.PhaseDocs{
		PhotoPresent:       photos > 0,
		PhotoCount:         photos,
		RequiredDocPresent: required > 0,
		RequiredDocCount:   required,
	}, nil
}

func (r *Repo) GetByID(ctx context.Context, docID int64) (*Document, error) {
	const q = `
SELECT doc_id, user_id, trip_id, doc_type, file_reference, file_path, uploaded_at
FROM documents
WHERE doc_id = $1
LIMIT 1`

	var d Document
	err := r.pg.QueryRow(ctx, q, docID).
		Scan(&d.DocID, &d.UserID, &d.TripID, &d.DocType, &d.FileReference, &d.FilePath, &d.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ListByTrip — документы рейса в порядке загрузки.
func (r *Repo) ListByTrip(ctx context.Context, tripID int64) ([]Document, error) {
	const q = `
SELECT doc_id, user_id, trip_id, doc_type, file_reference, file_path, uploaded_at
FROM documents
WHERE trip_id = $1
ORDER BY uploaded_at`

	rows, err := r.pg.Query(ctx, q, tripID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListByUser — документы водителя, новые первыми; тип и рейс — опциональные
// фильтры.
func (r *Repo) ListByUser(ctx context.Context, userID int64, docType *string, tripID *int64) ([]Document, error) {
	const q = `
SELECT doc_id, user_id, trip_id, doc_type, file_reference, file_path, uploaded_at
FROM documents
WHERE user_id = $1
  AND ($2::text IS NULL OR doc_type = $2)
  AND ($3::bigint IS NULL OR trip_id = $3)
ORDER BY uploaded_at DESC`

	rows, err := r.pg.Query(ctx, q, userID, docType, tripID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// RebindTrip меняет привязку документа к рейсу (поздняя привязка).
func (r *Repo) RebindTrip(ctx context.Context, docID, tripID int64) error {
	tag, err := r.pg.Exec(ctx, `UPDATE documents SET trip_id = $2 WHERE doc_id = $1`, docID, tripID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete — только явная чистка; обычный поток документы не удаляет.
func (r *Repo) Delete(ctx context.Context, docID int64) error {
	tag, err := r.pg.Exec(ctx, `DELETE FROM documents WHERE doc_id = $1`, docID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collect(rows pgx.Rows) ([]Document, error) {
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.DocID, &d.UserID, &d.TripID, &d.DocType, &d.FileReference, &d.FilePath, &d.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
