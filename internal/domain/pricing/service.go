package pricing

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Service fronts both calculators and logs each outcome.
type Service struct {
	schedule *ScheduleCalculator
	flatFile *FlatFileCalculator
	logger   zerolog.Logger
}

// NewService creates a Service over the two calculators.
func NewService(schedule *ScheduleCalculator, flatFile *FlatFileCalculator, logger zerolog.Logger) *Service {
	return &Service{schedule: schedule, flatFile: flatFile, logger: logger}
}

// PriceFromSchedule prices a PBS item from the schedule API.
func (s *Service) PriceFromSchedule(ctx context.Context, req ScheduleRequest) (*Quote, error) {
	start := time.Now()
	q, err := s.schedule.Quote(ctx, req)
	if err != nil {
		s.logFailure(err).
			Str("pbs_code", req.PBSCode).
			Int("quantity", req.Quantity).
			Msg("schedule pricing failed")
		return nil, err
	}
	s.logger.Debug().
		Str("pbs_code", req.PBSCode).
		Str("schedule", q.Schedule).
		Str("fdp", q.FDP.String()).
		Dur("latency", time.Since(start)).
		Msg("schedule priced")
	return q, nil
}

// PriceFromFlatFile prices a product from the price book.
func (s *Service) PriceFromFlatFile(ctx context.Context, req FlatFileRequest) (*FlatFileQuote, error) {
	q, err := s.flatFile.Quote(ctx, req)
	if err != nil {
		s.logFailure(err).
			Str("gtin", req.GTIN).
			Int("quantity", req.Quantity).
			Msg("price-book pricing failed")
		return nil, err
	}
	s.logger.Debug().
		Str("gtin", req.GTIN).
		Str("fdp", q.FDP.String()).
		Msg("price-book item priced")
	return q, nil
}

// logFailure picks a level by kind. Lookups that miss are routine.
func (s *Service) logFailure(err error) *zerolog.Event {
	kind := Classify(err)
	var ev *zerolog.Event
	switch kind {
	case KindNotFound, KindInvalid:
		ev = s.logger.Info()
	case KindConfig, KindDataIntegrity:
		ev = s.logger.Error()
	default:
		ev = s.logger.Warn()
	}
	return ev.Err(err).Str("kind", kind.String())
}
