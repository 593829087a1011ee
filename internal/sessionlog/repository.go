// Package sessionlog persists room lifecycle events for operational history:
// when rooms were created and deleted, who joined and left.
package sessionlog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Event is one room lifecycle row.
type Event struct {
	ID        int64     `json:"id"`
	RoomKey   string    `json:"room_key"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository handles room_events.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a room event repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// Record inserts one event row. It satisfies the engine's EventRecorder;
// failures are logged, never surfaced to the signaling path.
func (r *Repository) Record(ctx context.Context, roomKey, event, detail string) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO room_events (room_key, event, detail, created_at) VALUES ($1, $2, $3, NOW())`,
		roomKey, event, detail)
	if err != nil {
		r.logger.Warn("record room event",
			zap.String("room", roomKey),
			zap.String("event", event),
			zap.Error(err))
	}
}

// ListByRoom returns the events for one room key, oldest first.
func (r *Repository) ListByRoom(ctx context.Context, roomKey string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, room_key, event, detail, created_at FROM room_events
		 WHERE room_key = $1 ORDER BY created_at ASC, id ASC LIMIT $2`,
		roomKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.RoomKey, &e.Event, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
