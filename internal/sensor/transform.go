package sensor

import (
	"fmt"
	"math"
)

// Physical plausibility bounds. Values outside these ranges are sensor or
// ingest faults, not weather. Power admits a small negative band because a
// parked turbine draws from the grid.
const (
	MinWindSpeed          = 0.0
	MaxWindSpeed          = 150.0
	MinPower              = -500.0
	MaxPower              = 50000.0
	MinAmbientTemperature = -90.0
	MaxAmbientTemperature = 60.0
)

// Transform validates and normalizes one reading. It is pure: the same input
// always yields the same output or the same error. NULL numeric fields pass
// through as NULL; they are unknowns, never zeros.
func Transform(r Reading) (Transformed, error) {
	out := Transformed{Timestamp: r.Timestamp}

	ws, err := normalize("wind_speed", r.WindSpeed, MinWindSpeed, MaxWindSpeed)
	if err != nil {
		return Transformed{}, err
	}
	out.WindSpeed = ws

	p, err := normalize("power", r.Power, MinPower, MaxPower)
	if err != nil {
		return Transformed{}, err
	}
	out.Power = p

	at, err := normalize("ambient_temperature", r.AmbientTemperature, MinAmbientTemperature, MaxAmbientTemperature)
	if err != nil {
		return Transformed{}, err
	}
	out.AmbientTemperature = at

	return out, nil
}

// normalize checks one optional field against its range and rounds it to
// three decimals. A nil value is returned as nil.
func normalize(field string, v *float64, min, max float64) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil, ValidationError(field, "value is not finite")
	}
	if *v < min || *v > max {
		return nil, ValidationError(field, fmt.Sprintf("value %g outside [%g, %g]", *v, min, max))
	}
	rounded := math.Round(*v*1000) / 1000
	if rounded == 0 {
		rounded = 0 // collapse negative zero
	}
	return &rounded, nil
}
