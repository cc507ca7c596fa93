// Package postgres persists the event log and run summaries.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Config holds connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// EngineID tags every row so several engines can share a database.
	EngineID string
}

// DSN renders the libpq key/value connection string.
func (c Config) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, sslmode)
	if c.Password != "" {
		dsn += " password=" + c.Password
	}
	return dsn
}

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	EngineID  string                 `json:"engine_id"`
	SessionID *string                `json:"session_id,omitempty"`
}

// SummaryRow is a stored run summary.
type SummaryRow struct {
	SessionID          string    `json:"session_id"`
	Mission            string    `json:"mission"`
	StartedAt          time.Time `json:"started_at"`
	EndedAt            time.Time `json:"ended_at"`
	Completed          bool      `json:"completed"`
	TotalSteps         int64     `json:"total_steps"`
	IntervalsCompleted int64     `json:"intervals_completed"`
	EnemiesDefeated    int64     `json:"enemies_defeated"`
	Narrative          []string  `json:"narrative"`
}

// Client manages the Postgres connection.
type Client struct {
	db       *sql.DB
	engineID string
}

// New connects, verifies the connection and creates the tables.
func New(ctx context.Context, cfg Config) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	engineID := cfg.EngineID
	if engineID == "" {
		engineID = "stridequest"
	}
	c := &Client{db: db, engineID: engineID}
	if err := c.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return c, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS events (
		event_id   BIGSERIAL PRIMARY KEY,
		ts         TIMESTAMPTZ NOT NULL,
		level      TEXT NOT NULL,
		event      TEXT NOT NULL,
		msg        TEXT,
		fields     JSONB,
		engine_id  TEXT NOT NULL,
		session_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);

	CREATE TABLE IF NOT EXISTS run_summaries (
		session_id          TEXT PRIMARY KEY,
		engine_id           TEXT NOT NULL,
		mission             TEXT NOT NULL,
		started_at          TIMESTAMPTZ NOT NULL,
		ended_at            TIMESTAMPTZ NOT NULL,
		completed           BOOLEAN NOT NULL,
		total_steps         BIGINT NOT NULL,
		intervals_completed BIGINT NOT NULL,
		enemies_defeated    BIGINT NOT NULL,
		narrative           JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_run_summaries_ended ON run_summaries(ended_at DESC);
`

func (c *Client) createTables(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Append inserts an event. It implements events.Store.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	var fieldsJSON []byte
	if fields != nil {
		var err error
		if fieldsJSON, err = json.Marshal(fields); err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	_, err := c.db.Exec(`
		INSERT INTO events (ts, level, event, msg, fields, engine_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ts, level, event, nullable(msg), fieldsJSON, c.engineID, nullable(sessionID))
	return err
}

// clampLimit bounds a caller-supplied row limit to 1..10000, defaulting to 200.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 200
	case limit > 10000:
		return 10000
	}
	return limit
}

// SessionEvents returns the event log of one run in emission order.
func (c *Client) SessionEvents(ctx context.Context, sessionID string, limit int) ([]EventRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT event_id, ts, level, event, msg, fields, engine_id, session_id
		FROM events
		WHERE engine_id = $1 AND session_id = $2
		ORDER BY event_id
		LIMIT $3`, c.engineID, sessionID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, sessionID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.EngineID, &sessionID); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveSummary upserts a run summary.
func (c *Client) SaveSummary(ctx context.Context, s SummaryRow) error {
	narrative, err := json.Marshal(nonNil(s.Narrative))
	if err != nil {
		return fmt.Errorf("failed to marshal narrative: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO run_summaries (session_id, engine_id, mission, started_at, ended_at,
			completed, total_steps, intervals_completed, enemies_defeated, narrative)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			completed = EXCLUDED.completed,
			total_steps = EXCLUDED.total_steps,
			intervals_completed = EXCLUDED.intervals_completed,
			enemies_defeated = EXCLUDED.enemies_defeated,
			narrative = EXCLUDED.narrative`,
		s.SessionID, c.engineID, s.Mission, s.StartedAt, s.EndedAt,
		s.Completed, s.TotalSteps, s.IntervalsCompleted, s.EnemiesDefeated, narrative)
	if err != nil {
		return fmt.Errorf("save run summary %s: %w", s.SessionID, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Summaries returns the latest run summaries, newest first.
func (c *Client) Summaries(ctx context.Context, limit int) ([]SummaryRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT session_id, mission, started_at, ended_at, completed,
			total_steps, intervals_completed, enemies_defeated, narrative
		FROM run_summaries
		WHERE engine_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`, c.engineID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var s SummaryRow
		var narrative []byte
		if err := rows.Scan(&s.SessionID, &s.Mission, &s.StartedAt, &s.EndedAt, &s.Completed,
			&s.TotalSteps, &s.IntervalsCompleted, &s.EnemiesDefeated, &narrative); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(narrative, &s.Narrative); err != nil {
			return nil, fmt.Errorf("failed to unmarshal narrative: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
