package matchlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/park285/maths-nerds-server/internal/session"
)

const schema = `CREATE TABLE IF NOT EXISTS room_matches (
    match_id     UUID PRIMARY KEY,
    room_code    TEXT        NOT NULL,
    player1_id   TEXT        NOT NULL DEFAULT '',
    player1_name TEXT        NOT NULL DEFAULT '',
    player2_id   TEXT        NOT NULL DEFAULT '',
    player2_name TEXT        NOT NULL DEFAULT '',
    players      JSONB       NOT NULL,
    started      BOOLEAN     NOT NULL,
    turn_count   INTEGER     NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    closed_at    TIMESTAMPTZ NOT NULL,
    duration_ms  BIGINT      NOT NULL,
    UNIQUE (room_code, created_at)
)`

const upsert = `INSERT INTO room_matches (
    match_id, room_code,
    player1_id, player1_name, player2_id, player2_name, players,
    started, turn_count, created_at, closed_at, duration_ms
  ) VALUES (
    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
  ) ON CONFLICT (room_code, created_at) DO UPDATE SET
    player1_id=EXCLUDED.player1_id,
    player1_name=EXCLUDED.player1_name,
    player2_id=EXCLUDED.player2_id,
    player2_name=EXCLUDED.player2_name,
    players=EXCLUDED.players,
    started=EXCLUDED.started,
    turn_count=EXCLUDED.turn_count,
    closed_at=EXCLUDED.closed_at,
    duration_ms=EXCLUDED.duration_ms`

// Repository writes one row per closed room.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// SaveRoom upserts the record of a closed room.
func (r *Repository) SaveRoom(ctx context.Context, sum session.RoomSummary) error {
	if r == nil || r.db == nil {
		return nil
	}
	row, err := rowOf(sum)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, upsert, row.args()...)
	return err
}

type matchRow struct {
	id         string
	code       string
	p1ID       string
	p1Name     string
	p2ID       string
	p2Name     string
	players    string
	started    bool
	turns      int
	createdAt  time.Time
	closedAt   time.Time
	durationMs int64
}

func (m matchRow) args() []any {
	return []any{
		m.id, m.code,
		m.p1ID, m.p1Name, m.p2ID, m.p2Name, m.players,
		m.started, m.turns, m.createdAt, m.closedAt, m.durationMs,
	}
}

// rowOf flattens a summary. The seat columns hold the first occupant of
// each seat; players keeps everyone who sat down, in join order.
func rowOf(sum session.RoomSummary) (matchRow, error) {
	raw, err := json.Marshal(sum.Players)
	if err != nil {
		return matchRow{}, fmt.Errorf("marshal players: %w", err)
	}
	row := matchRow{
		id:        uuid.NewString(),
		code:      sum.Code,
		players:   string(raw),
		started:   sum.Started,
		turns:     sum.TurnCount,
		createdAt: sum.CreatedAt,
		closedAt:  sum.ClosedAt,
	}
	for _, p := range sum.Players {
		switch {
		case p.PlayerNumber == session.Player1 && row.p1ID == "":
			row.p1ID, row.p1Name = p.ID, p.Name
		case p.PlayerNumber == session.Player2 && row.p2ID == "":
			row.p2ID, row.p2Name = p.ID, p.Name
		}
	}
	if d := sum.ClosedAt.Sub(sum.CreatedAt).Milliseconds(); d > 0 {
		row.durationMs = d
	}
	return row, nil
}
