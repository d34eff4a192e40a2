// Package store wraps pgx connection pools for the source and target
// relational stores and owns the `data` table schema.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/windlab/sensor-etl/internal/logging"
	"github.com/windlab/sensor-etl/internal/metrics"
	"github.com/windlab/sensor-etl/internal/sensor"
)

// Store is one relational store (source or target).
type Store struct {
	name string
	pool *pgxpool.Pool
}

// Open connects to a store and verifies the connection.
func Open(ctx context.Context, name, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store %s: empty DSN", name)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store %s: parse DSN: %w", name, err)
	}

	// Configure connection pool
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store %s: create pool: %w", name, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store %s: ping: %w", name, err)
	}

	logging.Component("store").Info("connected", "store", name)
	return &Store{name: name, pool: pool}, nil
}

// Name returns the store's configured name ("source", "target", ...).
func (s *Store) Name() string { return s.name }

// Pool exposes the underlying connection pool to the ETL stages.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping checks reachability; used by the liveness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		if m := metrics.Get(); m != nil {
			m.IncStoreErrors(s.name)
		}
		return sensor.WrapError(sensor.KindStoreUnavailable, fmt.Sprintf("ping %s", s.name), err)
	}
	return nil
}

// Snapshot reads every row of the data table ordered by timestamp.
// The exporter uses this; it never goes through the pipeline.
func (s *Store) Snapshot(ctx context.Context) ([]sensor.Reading, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, timestamp, wind_speed, power, ambient_temperature
		FROM data
		ORDER BY timestamp, id
	`)
	if err != nil {
		if m := metrics.Get(); m != nil {
			m.IncStoreErrors(s.name)
		}
		return nil, sensor.WrapError(sensor.KindStoreUnavailable, fmt.Sprintf("snapshot %s", s.name), err)
	}
	defer rows.Close()

	var out []sensor.Reading
	for rows.Next() {
		var r sensor.Reading
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.WindSpeed, &r.Power, &r.AmbientTemperature); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, sensor.WrapError(sensor.KindStoreUnavailable, fmt.Sprintf("snapshot %s", s.name), err)
	}
	return out, nil
}

// CountRows returns the number of rows in the data table.
func (s *Store) CountRows(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM data`).Scan(&n); err != nil {
		return 0, sensor.WrapError(sensor.KindStoreUnavailable, fmt.Sprintf("count %s", s.name), err)
	}
	return n, nil
}

// Close releases database connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
