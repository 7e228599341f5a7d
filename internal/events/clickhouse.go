// Package events streams visit events into ClickHouse for offline analysis.
// The durable per-link counters in Postgres are authoritative; this stream
// is an append-only firehose and every write is best-effort.
package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// ErrUnavailable is returned when the events DB is not configured.
var ErrUnavailable = errors.New("events unavailable")

// EventService records visit events. Implementations must tolerate an
// unavailable backing store by returning ErrUnavailable.
type EventService interface {
	RecordVisit(ctx context.Context, e VisitEvent) error
}

// VisitEvent mirrors a row in the visit_events table.
type VisitEvent struct {
	Timestamp time.Time `json:"timestamp"`
	ShortCode string    `json:"short_code"`
	IPAddress string    `json:"ip_address"`
	Device    string    `json:"device"`
	Country   string    `json:"country"`
	Referer   string    `json:"referer"`
	Outcome   string    `json:"outcome"`
}

// Events wraps a ClickHouse connection.
type Events struct {
	DB *sql.DB
}

var _ EventService = (*Events)(nil)

// InitClickHouse connects to ClickHouse and ensures the visit_events table
// exists.
func InitClickHouse(dsn string) (*Events, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(25)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS visit_events (
       timestamp  DateTime,
       short_code String,
       ip_address String,
       device     String,
       country    String,
       referer    String,
       outcome    String
   ) ENGINE=MergeTree() ORDER BY (short_code, timestamp)`
	if _, err := db.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Events{DB: db}, nil
}

// RecordVisit inserts a single visit event row.
func (e *Events) RecordVisit(ctx context.Context, ev VisitEvent) error {
	if e == nil || e.DB == nil {
		return ErrUnavailable
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	_, err := e.DB.ExecContext(ctx,
		`INSERT INTO visit_events (timestamp, short_code, ip_address, device, country, referer, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Timestamp, ev.ShortCode, ev.IPAddress, ev.Device, ev.Country, ev.Referer, ev.Outcome)
	if err != nil {
		return fmt.Errorf("insert visit event: %w", err)
	}
	return nil
}

// Close terminates the ClickHouse connection.
func (e *Events) Close() {
	if e != nil && e.DB != nil {
		if err := e.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
