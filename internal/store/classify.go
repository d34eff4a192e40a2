package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/windlab/sensor-etl/internal/sensor"
)

// Classify maps a database error onto the pipeline taxonomy. Integrity
// violations (Postgres class 23) and cardinality violations (class 21, e.g.
// the same key affected twice in one statement) are data faults and never
// retried; a deadline or connection failure becomes the given unavailable
// kind so the orchestrator can retry it. Caller cancellation passes through
// untouched.
func Classify(err error, unavailable sensor.Kind, reason string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "23") || strings.HasPrefix(pgErr.Code, "21")) {
		return sensor.WrapError(sensor.KindConstraintViolation, reason, err)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	// Everything else on the wire path is treated as connectivity:
	// deadline exceeded, refused connections, pool exhaustion.
	return sensor.WrapError(unavailable, reason, err)
}
