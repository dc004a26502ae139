package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// EscalationStore — подавление повторных эскалаций: не больше одной на
// непрерывное окно молчания водителя. Живёт в Redis с TTL = cooldown,
// поэтому дедупликация переживает рестарт процесса. Значением хранится
// якорь окна — unix-время последней точки на момент эскалации: новая
// точка сдвигает якорь и снимает подавление.
type EscalationStore struct {
	rdb      *redis.Client
	cooldown time.Duration
}

func NewEscalationStore(rdb *redis.Client, cooldown time.Duration) *EscalationStore {
	return &EscalationStore{rdb: rdb, cooldown: cooldown}
}

func (s *EscalationStore) key(userID int64) string {
	return "escalation:" + strconv.FormatInt(userID, 10)
}

// Suppressed отвечает, была ли уже эскалация в текущем окне молчания
// (то есть с той же последней точкой).
func (s *EscalationStore) Suppressed(ctx context.Context, userID int64, lastPoint time.Time) (bool, error) {
	val, err := s.rdb.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	anchor, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, nil
	}
	if anchor != lastPoint.Unix() {
		// пришла новая точка — прежнее окно закрыто
		_ = s.rdb.Del(ctx, s.key(userID)).Err()
		return false, nil
	}
	return true, nil
}

// MarkEscalated фиксирует эскалацию текущего окна.
func (s *EscalationStore) MarkEscalated(ctx context.Context, userID int64, lastPoint time.Time) error {
	return s.rdb.Set(ctx, s.key(userID), strconv.FormatInt(lastPoint.Unix(), 10), s.cooldown).Err()
}

// Clear снимает подавление (например при ручном сбросе).
func (s *EscalationStore) Clear(ctx context.Context, userID int64) error {
	return s.rdb.Del(ctx, s.key(userID)).Err()
}
