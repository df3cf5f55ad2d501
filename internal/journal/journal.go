// Package journal records evaluated ticks and handled commands to SQLite
// for offline inspection.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/signalsfoundry/geofence-simulator/model"
)

//go:embed schema.sql
var schemaSQL string

// ErrClosed is returned when the journal was never opened.
var ErrClosed = errors.New("journal is not open")

// TickRecord is one journaled tick.
type TickRecord struct {
	ID            int64                `json:"id,omitempty"`
	Seq           uint64               `json:"seq"`
	Generation    uint64               `json:"generation"`
	At            time.Time            `json:"at"`
	Devices       []model.Device       `json:"devices"`
	Notifications []model.Notification `json:"notifications"`
	Polygons      int                  `json:"polygons"`
}

// CommandRecord is one journaled command.
type CommandRecord struct {
	ID      int64     `json:"id"`
	At      time.Time `json:"at"`
	Command string    `json:"command"`
	Detail  string    `json:"detail,omitempty"`
}

// Journal is an append-only SQLite log of ticks and commands.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the journal database at path and applies the
// schema. Use ":memory:" for a throwaway journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the underlying database. It is safe to call more than once.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordTick appends one evaluated tick.
func (j *Journal) RecordTick(ctx context.Context, rec TickRecord) error {
	if j == nil || j.db == nil {
		return ErrClosed
	}
	devices, err := json.Marshal(nonNilDevices(rec.Devices))
	if err != nil {
		return fmt.Errorf("encode devices: %w", err)
	}
	notifications, err := json.Marshal(nonNilNotifications(rec.Notifications))
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}
	at := rec.At
	if at.IsZero() {
		at = j.now()
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO ticks (seq, generation, at, devices_json, notifications_json, polygons)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		int64(rec.Seq), int64(rec.Generation), at.UTC().Format(time.RFC3339Nano),
		string(devices), string(notifications), rec.Polygons,
	)
	if err != nil {
		return fmt.Errorf("insert tick %d: %w", rec.Seq, err)
	}
	return nil
}

// RecordCommand appends one handled command.
func (j *Journal) RecordCommand(ctx context.Context, command, detail string) error {
	if j == nil || j.db == nil {
		return ErrClosed
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO commands (at, command, detail) VALUES (?, ?, ?)`,
		j.now().UTC().Format(time.RFC3339Nano), command, detail,
	)
	if err != nil {
		return fmt.Errorf("insert command %q: %w", command, err)
	}
	return nil
}

// RecentTicks returns up to limit of the most recently journaled ticks,
// oldest first.
func (j *Journal) RecentTicks(ctx context.Context, limit int) ([]TickRecord, error) {
	if j == nil || j.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return []TickRecord{}, nil
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, seq, generation, at, devices_json, notifications_json, polygons
		 FROM (SELECT * FROM ticks ORDER BY id DESC LIMIT ?)
		 ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	out := []TickRecord{}
	for rows.Next() {
		var (
			rec                    TickRecord
			seq, generation        int64
			at, devices, notifsRaw string
		)
		if err := rows.Scan(&rec.ID, &seq, &generation, &at, &devices, &notifsRaw, &rec.Polygons); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		rec.Seq, rec.Generation = uint64(seq), uint64(generation)
		if rec.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("tick %d time: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(devices), &rec.Devices); err != nil {
			return nil, fmt.Errorf("tick %d devices: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(notifsRaw), &rec.Notifications); err != nil {
			return nil, fmt.Errorf("tick %d notifications: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentCommands returns up to limit of the most recent commands, oldest
// first.
func (j *Journal) RecentCommands(ctx context.Context, limit int) ([]CommandRecord, error) {
	if j == nil || j.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return []CommandRecord{}, nil
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, at, command, detail
		 FROM (SELECT * FROM commands ORDER BY id DESC LIMIT ?)
		 ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	out := []CommandRecord{}
	for rows.Next() {
		var (
			rec CommandRecord
			at  string
		)
		if err := rows.Scan(&rec.ID, &at, &rec.Command, &rec.Detail); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		if rec.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("command %d time: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nonNilDevices(in []model.Device) []model.Device {
	if in == nil {
		return []model.Device{}
	}
	return in
}

func nonNilNotifications(in []model.Notification) []model.Notification {
	if in == nil {
		return []model.Notification{}
	}
	return in
}
