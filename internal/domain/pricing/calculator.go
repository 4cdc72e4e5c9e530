package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/televita/rxprice/internal/platform/pbsapi"
)

// ScheduleSource is the upstream data a ScheduleCalculator prices from.
// *pbsapi.Client satisfies it.
type ScheduleSource interface {
	ResolveSchedule(ctx context.Context, period pbsapi.Period) (string, error)
	Item(ctx context.Context, pbsCode, scheduleCode string) (*pbsapi.Item, error)
	RuleSummary(ctx context.Context, liItemID string) (pbsapi.RuleSummary, error)
}

// ScheduleRequest asks for the price of a PBS item.
type ScheduleRequest struct {
	PBSCode string
	// ScheduleCode pins the fee schedule. When empty the schedule is
	// resolved from Period.
	ScheduleCode  string
	Period        pbsapi.Period
	Quantity      int
	DangerousDrug bool
	Claim
}

func (r ScheduleRequest) validate() error {
	if strings.TrimSpace(r.PBSCode) == "" {
		return fmt.Errorf("%w: PBS code is required", ErrInvalidRequest)
	}
	if r.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1, got %d", ErrInvalidRequest, r.Quantity)
	}
	return nil
}

// ScheduleCalculatorOption configures a ScheduleCalculator.
type ScheduleCalculatorOption func(*ScheduleCalculator)

// WithPreviousScheduleFallback retries a current-period lookup against the
// previous month's schedule when the item is missing from the current one.
// Items are often published a few days after a schedule rolls over.
func WithPreviousScheduleFallback(enabled bool) ScheduleCalculatorOption {
	return func(c *ScheduleCalculator) { c.fallbackPrevious = enabled }
}

// WithCalculatorLogger sets the logger.
func WithCalculatorLogger(l zerolog.Logger) ScheduleCalculatorOption {
	return func(c *ScheduleCalculator) { c.logger = l }
}

// ScheduleCalculator prices items from the PBS schedule.
type ScheduleCalculator struct {
	source           ScheduleSource
	fees             Fees
	fallbackPrevious bool
	logger           zerolog.Logger
}

// NewScheduleCalculator creates a calculator over source.
func NewScheduleCalculator(source ScheduleSource, fees Fees, opts ...ScheduleCalculatorOption) *ScheduleCalculator {
	c := &ScheduleCalculator{source: source, fees: fees, logger: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Quote resolves the schedule, fetches the item and its dispensing rules,
// and prices it. Upstream failures are returned unchanged.
func (c *ScheduleCalculator) Quote(ctx context.Context, req ScheduleRequest) (*Quote, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.TrimSpace(req.PBSCode))

	schedule := req.ScheduleCode
	pinned := schedule != ""
	if !pinned {
		var err error
		if schedule, err = c.source.ResolveSchedule(ctx, req.Period); err != nil {
			return nil, err
		}
	}

	item, err := c.source.Item(ctx, code, schedule)
	if errors.Is(err, pbsapi.ErrNotFound) && c.fallbackPrevious && !pinned && req.Period == pbsapi.PeriodCurrent {
		item, err = c.previousScheduleItem(ctx, code, schedule)
	}
	if err != nil {
		return nil, err
	}

	rules, err := c.source.RuleSummary(ctx, item.LIItemID)
	if err != nil {
		return nil, err
	}

	q := ScheduleFormula(ScheduleInputs{
		ScheduleCode:    item.ScheduleCode,
		DangerousDrug:   req.DangerousDrug,
		DeterminedPrice: item.DeterminedPrice,
		Quantity:        req.Quantity,
		RuleDPMQ:        rules.DPMQ,
		BrandPremium:    rules.BrandPremium,
		Claim:           req.Claim,
	}, c.fees)
	return &q, nil
}

func (c *ScheduleCalculator) previousScheduleItem(ctx context.Context, code, current string) (*pbsapi.Item, error) {
	previous, err := c.source.ResolveSchedule(ctx, pbsapi.PeriodPrevious)
	if err != nil {
		return nil, err
	}
	c.logger.Info().
		Str("pbs_code", code).
		Str("schedule", current).
		Str("fallback_schedule", previous).
		Msg("item missing from current schedule, trying previous")
	return c.source.Item(ctx, code, previous)
}

// FlatFileRequest asks for the price of a price-book item.
type FlatFileRequest struct {
	GTIN     string
	Quantity int
	Claim
}

// FlatFileCalculator prices items from a distributor price book.
type FlatFileCalculator struct {
	book PriceBook
	fees Fees
}

// NewFlatFileCalculator creates a calculator over book.
func NewFlatFileCalculator(book PriceBook, fees Fees) *FlatFileCalculator {
	return &FlatFileCalculator{book: book, fees: fees}
}

// Quote looks up the GTIN and prices it.
func (c *FlatFileCalculator) Quote(ctx context.Context, req FlatFileRequest) (*FlatFileQuote, error) {
	gtin := strings.TrimSpace(req.GTIN)
	if gtin == "" {
		return nil, fmt.Errorf("%w: GTIN is required", ErrInvalidRequest)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1, got %d", ErrInvalidRequest, req.Quantity)
	}

	rec, err := c.book.Lookup(ctx, gtin)
	if err != nil {
		return nil, err
	}
	q := FlatFileFormula(rec, req.Quantity, req.Claim, c.fees)
	return &q, nil
}
