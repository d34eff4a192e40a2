package pipeline

import (
	"context"

	"github.com/windlab/sensor-etl/internal/extract"
	"github.com/windlab/sensor-etl/internal/sensor"
)

// ExtractorSource adapts the concrete extractor to the Source interface.
type ExtractorSource struct {
	Extractor *extract.Extractor
}

func (s ExtractorSource) Extract(ctx context.Context, w sensor.Window) (BatchCursor, error) {
	cursor, err := s.Extractor.Extract(ctx, w)
	if err != nil {
		return nil, err
	}
	return cursor, nil
}
