// Package sensor holds the domain types shared by the ETL stages: readings,
// extraction windows, batches, the transform rules and the error taxonomy.
package sensor

import "time"

// Reading is one row of the `data` table. Numeric fields are pointers because
// sensor dropout leaves them NULL; NULL must survive the pipeline as NULL.
type Reading struct {
	ID                 int64
	Timestamp          time.Time
	WindSpeed          *float64 // m/s
	Power              *float64 // kW
	AmbientTemperature *float64 // °C
}

// Transformed is a reading that passed validation and normalization and is
// ready for the target store.
type Transformed struct {
	Timestamp          time.Time
	WindSpeed          *float64
	Power              *float64
	AmbientTemperature *float64
}

// Batch is a bounded group of readings fetched in one extractor call,
// ordered by timestamp ascending. Index is the batch's position within
// the run, starting at zero.
type Batch struct {
	Index    int
	Readings []Reading
}
