package store

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema_source.sql
var sourceSchemaSQL string

//go:embed schema_target.sql
var targetSchemaSQL string

// EnsureSourceSchema creates the source data table and index if absent.
// Safe to call on every startup.
func (s *Store) EnsureSourceSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sourceSchemaSQL); err != nil {
		return fmt.Errorf("store %s: ensure source schema: %w", s.name, err)
	}
	return nil
}

// EnsureTargetSchema creates the target data table, its natural-key index
// and the run audit table if absent. Safe to call on every startup.
func (s *Store) EnsureTargetSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, targetSchemaSQL); err != nil {
		return fmt.Errorf("store %s: ensure target schema: %w", s.name, err)
	}
	return nil
}
