// Package seed populates the source store with a synthetic year of readings
// so the pipeline can be exercised without real telemetry.
package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/windlab/sensor-etl/internal/logging"
	"github.com/windlab/sensor-etl/internal/store"
)

const (
	interval  = 10 * time.Minute
	days      = 365
	batchSize = 1000

	// Roughly a 2MW-class turbine.
	ratedPowerKW  = 2000.0
	cutInSpeed    = 3.0
	ratedSpeed    = 12.0
	cutOutSpeed   = 25.0
	dropoutChance = 0.02
)

// Run fills the source data table with one year of 10-minute readings,
// skipping entirely when the table already has rows.
func Run(ctx context.Context, st *store.Store, start time.Time) error {
	log := logging.Component("seed")

	existing, err := st.CountRows(ctx)
	if err != nil {
		return err
	}
	if existing > 0 {
		log.Info("store already seeded, skipping", "rows", existing)
		return nil
	}

	rng := rand.New(rand.NewSource(42))
	total := days * 24 * 6
	log.Info("seeding source store", "rows", total, "start", start.Format(time.RFC3339))

	pool := st.Pool()
	inserted := 0
	for inserted < total {
		n := batchSize
		if total-inserted < n {
			n = total - inserted
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin seed batch: %w", err)
		}
		for i := 0; i < n; i++ {
			ts := start.Add(time.Duration(inserted+i) * interval)
			ws, p, at := synthesize(rng, ts)
			if _, err := tx.Exec(ctx, `
				INSERT INTO data (timestamp, wind_speed, power, ambient_temperature)
				VALUES ($1, $2, $3, $4)
			`, ts, ws, p, at); err != nil {
				tx.Rollback(ctx)
				return fmt.Errorf("insert seed row: %w", err)
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit seed batch: %w", err)
		}

		inserted += n
		log.Debug("seed progress", "inserted", inserted, "total", total)
	}

	log.Info("seeding complete", "rows", inserted)
	return nil
}

// synthesize produces one plausible reading: a diurnal + seasonal wind
// profile, the matching power-curve output and ambient temperature, each
// with a small dropout probability that yields NULL.
func synthesize(rng *rand.Rand, ts time.Time) (windSpeed, power, ambientTemp *float64) {
	hour := float64(ts.Hour()) + float64(ts.Minute())/60
	dayOfYear := float64(ts.YearDay())

	diurnal := 2.0 * math.Sin((hour-14)/24*2*math.Pi)
	seasonal := 3.0 * math.Sin((dayOfYear-30)/365*2*math.Pi)
	ws := 8.0 + diurnal + seasonal + rng.NormFloat64()*2.5
	if ws < 0 {
		ws = 0
	}

	p := powerCurve(ws) * (1 + rng.NormFloat64()*0.05)
	if p < 0 {
		p = 0
	}

	at := 15.0 - seasonal*2.5 + 4.0*math.Sin((hour-15)/24*2*math.Pi) + rng.NormFloat64()*1.5

	if rng.Float64() >= dropoutChance {
		windSpeed = &ws
	}
	if rng.Float64() >= dropoutChance {
		power = &p
	}
	if rng.Float64() >= dropoutChance {
		ambientTemp = &at
	}
	return windSpeed, power, ambientTemp
}

// powerCurve maps wind speed to active power for the synthetic turbine.
func powerCurve(ws float64) float64 {
	switch {
	case ws < cutInSpeed, ws >= cutOutSpeed:
		return 0
	case ws >= ratedSpeed:
		return ratedPowerKW
	default:
		frac := (ws - cutInSpeed) / (ratedSpeed - cutInSpeed)
		return ratedPowerKW * frac * frac * frac
	}
}
