package trips

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// EventLog — журнал аудита рейса. Запись идёт синхронно с мутацией, но
// best-effort: сбой журнала логируется и не откатывает основную операцию
// (см. BestEffort).
type EventLog struct {
	pg     *pgxpool.Pool
	logger *zap.Logger
}

func NewEventLog(pg *pgxpool.Pool, logger *zap.Logger) *EventLog {
	return &EventLog{pg: pg, logger: logger}
}

// Append пишет событие; metadata сериализуется в JSONB.
func (l *EventLog) Append(ctx context.Context, tripID int64, eventType, description string, createdBy *int64, meta any) (*Event, error) {
	var metaJSON []byte
	if meta != nil {
		var err error
		metaJSON, err = json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("marshal event metadata: %w", err)
		}
	}

	const q = `
INSERT INTO trip_events (id, trip_id, event_type, description, created_by, metadata)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`

	e := Event{
		ID:          uuid.New(),
		TripID:      tripID,
		Type:        eventType,
		Description: description,
		CreatedBy:   createdBy,
		Metadata:    metaJSON,
	}
	if err := l.pg.QueryRow(ctx, q, e.ID, e.TripID, e.Type, e.Description, e.CreatedBy, metaJSON).Scan(&e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// BestEffort — то же, что Append, но сбой только логируется.
func (l *EventLog) BestEffort(ctx context.Context, tripID int64, eventType, description string, createdBy *int64, meta any) {
	if _, err := l.Append(ctx, tripID, eventType, description, createdBy, meta); err != nil {
		l.logger.Warn("trip event write failed",
			zap.Int64("trip_id", tripID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

// LogEvent реализует сток событий для реестра документов
// (documents.TripEventSink).
func (l *EventLog) LogEvent(ctx context.Context, tripID int64, eventType, description string, createdBy *int64, meta any) error {
	_, err := l.Append(ctx, tripID, eventType, description, createdBy, meta)
	return err
}

// ListByTrip возвращает события рейса в хронологическом порядке.
func (l *EventLog) ListByTrip(ctx context.Context, tripID int64) ([]Event, error) {
	const q = `
SELECT id, trip_id, event_type, description, created_at, created_by, metadata
FROM trip_events
WHERE trip_id = $1
ORDER BY created_at`

	rows, err := l.pg.Query(ctx, q, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TripID, &e.Type, &e.Description, &e.CreatedAt, &e.CreatedBy, &e.Metadata); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
