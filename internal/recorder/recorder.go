package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/crop-prediction/internal/prediction"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DefaultRecentLimit caps Recent when the caller passes a non-positive limit.
const DefaultRecentLimit = 50

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	lat        DOUBLE PRECISION NOT NULL,
	lon        DOUBLE PRECISION NOT NULL,
	request    TEXT NOT NULL,
	features   TEXT NOT NULL,
	result     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

// Record is one stored prediction.
type Record struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Lat       float64         `json:"lat"`
	Lon       float64         `json:"lon"`
	Request   json.RawMessage `json:"request"`
	Features  json.RawMessage `json:"features"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

type row struct {
	ID        string    `db:"id"`
	Kind      string    `db:"kind"`
	Lat       float64   `db:"lat"`
	Lon       float64   `db:"lon"`
	Request   string    `db:"request"`
	Features  string    `db:"features"`
	Result    string    `db:"result"`
	CreatedAt time.Time `db:"created_at"`
}

// Recorder persists prediction events in SQLite or Postgres.
type Recorder struct {
	db *sqlx.DB
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, driver, dsn string) (*Recorder, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("recorder: unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("recorder open: %w", err)
	}
	if driver == DriverSQLite {
		// An in-memory database exists per connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recorder ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recorder schema: %w", err)
	}

	slog.Info("prediction recorder ready", "driver", driver)
	return &Recorder{db: db}, nil
}

// Name implements prediction.Sink.
func (r *Recorder) Name() string { return "recorder" }

// Handle stores ev.
func (r *Recorder) Handle(ctx context.Context, ev prediction.Event) error {
	req, err := json.Marshal(ev.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	feats, err := json.Marshal(ev.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	res, err := json.Marshal(ev.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	const query = `
		INSERT INTO predictions (id, kind, lat, lon, request, features, result, created_at)
		VALUES (:id, :kind, :lat, :lon, :request, :features, :result, :created_at)`

	_, err = r.db.NamedExecContext(ctx, query, row{
		ID:        ev.ID,
		Kind:      ev.Kind,
		Lat:       ev.Location.Lat,
		Lon:       ev.Location.Lon,
		Request:   string(req),
		Features:  string(feats),
		Result:    string(res),
		CreatedAt: ev.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := r.db.Rebind(`
		SELECT id, kind, lat, lon, request, features, result, created_at
		FROM predictions
		ORDER BY created_at DESC, id
		LIMIT ?`)

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("select predictions: %w", err)
	}

	out := make([]Record, 0, len(rows))
	for _, rw := range rows {
		out = append(out, Record{
			ID:        rw.ID,
			Kind:      rw.Kind,
			Lat:       rw.Lat,
			Lon:       rw.Lon,
			Request:   json.RawMessage(rw.Request),
			Features:  json.RawMessage(rw.Features),
			Result:    json.RawMessage(rw.Result),
			CreatedAt: rw.CreatedAt,
		})
	}
	return out, nil
}

// Close releases the database.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
