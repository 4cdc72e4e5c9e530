package pricing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/televita/rxprice/internal/platform/pbsapi"
)

// fakeSource serves schedules, items and rules from maps and records calls.
type fakeSource struct {
	schedules  map[pbsapi.Period]string
	items      map[string]pbsapi.Item // keyed by code/schedule
	rules      map[string]pbsapi.RuleSummary
	resolveErr error
	itemErr    error
	rulesErr   error

	resolved  []pbsapi.Period
	itemCalls []string
	ruleCalls []string
}

func (f *fakeSource) ResolveSchedule(_ context.Context, p pbsapi.Period) (string, error) {
	f.resolved = append(f.resolved, p)
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	code, ok := f.schedules[p]
	if !ok {
		return "", fmt.Errorf("%w: no schedule for %s", pbsapi.ErrNotFound, p)
	}
	return code, nil
}

func (f *fakeSource) Item(_ context.Context, pbsCode, scheduleCode string) (*pbsapi.Item, error) {
	key := pbsCode + "/" + scheduleCode
	f.itemCalls = append(f.itemCalls, key)
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	it, ok := f.items[key]
	if !ok {
		return nil, fmt.Errorf("%w: no item %s", pbsapi.ErrNotFound, key)
	}
	return &it, nil
}

func (f *fakeSource) RuleSummary(_ context.Context, liItemID string) (pbsapi.RuleSummary, error) {
	f.ruleCalls = append(f.ruleCalls, liItemID)
	if f.rulesErr != nil {
		return pbsapi.RuleSummary{}, f.rulesErr
	}
	return f.rules[liItemID], nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		schedules: map[pbsapi.Period]string{
			pbsapi.PeriodCurrent:  "3963",
			pbsapi.PeriodPrevious: "3962",
		},
		items: map[string]pbsapi.Item{
			"1234A/3963": {PBSCode: "1234A", ScheduleCode: "3963", DeterminedPrice: dec("10.00"), LIItemID: "li-1"},
			"5678B/3963": {PBSCode: "5678B", ScheduleCode: "3963", DeterminedPrice: dec("3.00"), LIItemID: "li-2"},
			"9999Z/3962": {PBSCode: "9999Z", ScheduleCode: "3962", DeterminedPrice: dec("10.00"), LIItemID: "li-3"},
		},
		rules: map[string]pbsapi.RuleSummary{
			"li-2": {DPMQ: decPtr("50"), BrandPremium: dec("0.85")},
		},
	}
}

func TestScheduleCalculator_Quote(t *testing.T) {
	src := newFakeSource()
	calc := NewScheduleCalculator(src, DefaultFees())

	q, err := calc.Quote(context.Background(), ScheduleRequest{PBSCode: " 1234a ", Quantity: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "FDP", q.FDP, "25.31")
	if q.Schedule != "3963" {
		t.Errorf("expected schedule 3963, got %s", q.Schedule)
	}
	if len(src.itemCalls) != 1 || src.itemCalls[0] != "1234A/3963" {
		t.Errorf("unexpected item calls %v", src.itemCalls)
	}
	if len(src.ruleCalls) != 1 || src.ruleCalls[0] != "li-1" {
		t.Errorf("unexpected rule calls %v", src.ruleCalls)
	}
}

func TestScheduleCalculator_RuleOverride(t *testing.T) {
	calc := NewScheduleCalculator(newFakeSource(), DefaultFees())

	q, err := calc.Quote(context.Background(), ScheduleRequest{
		PBSCode:  "5678B",
		Quantity: 10,
		Claim:    Claim{AuthorityMedicare: true, ConcessionEligible: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "DPMQ", q.DPMQ, "50")
	assertDecimal(t, "FDP", q.FDP, "54.73")
	assertDecimal(t, "General", q.General, "31.60")
	assertDecimal(t, "Concessional", q.Concessional, "7.70")
	assertDecimal(t, "Brand", q.Brand, "32.45")
}

func TestScheduleCalculator_PinnedSchedule(t *testing.T) {
	src := newFakeSource()
	calc := NewScheduleCalculator(src, DefaultFees())

	q, err := calc.Quote(context.Background(), ScheduleRequest{PBSCode: "9999Z", ScheduleCode: "3962", Quantity: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.resolved) != 0 {
		t.Errorf("a pinned schedule must not be resolved, got %v", src.resolved)
	}
	if q.Schedule != "3962" {
		t.Errorf("expected schedule 3962, got %s", q.Schedule)
	}
}

func TestScheduleCalculator_PreviousPeriod(t *testing.T) {
	src := newFakeSource()
	calc := NewScheduleCalculator(src, DefaultFees())

	if _, err := calc.Quote(context.Background(), ScheduleRequest{PBSCode: "9999Z", Period: pbsapi.PeriodPrevious, Quantity: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.resolved) != 1 || src.resolved[0] != pbsapi.PeriodPrevious {
		t.Errorf("expected a previous-period resolution, got %v", src.resolved)
	}
}

func TestScheduleCalculator_NotFound(t *testing.T) {
	src := newFakeSource()
	calc := NewScheduleCalculator(src, DefaultFees())

	_, err := calc.Quote(context.Background(), ScheduleRequest{PBSCode: "9999Z", Quantity: 1})
	if !errors.Is(err, pbsapi.ErrNotFound) {
		t.Fatalf("expected pbsapi.ErrNotFound, got %v", err)
	}
	if Classify(err) != KindNotFound {
		t.Errorf("expected not-found kind, got %s", Classify(err))
	}
	if len(src.ruleCalls) != 0 {
		t.Error("rules must not be fetched for a missing item")
	}
}

func TestScheduleCalculator_PreviousScheduleFallback(t *testing.T) {
	src := newFakeSource()
	calc := NewScheduleCalculator(src, DefaultFees(), WithPreviousScheduleFallback(true))

	q, err := calc.Quote(context.Background(), ScheduleRequest{PBSCode: "9999Z", Quantity: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Schedule != "3962" {
		t.Errorf("expected the previous schedule, got %s", q.Schedule)
	}
	want := []string{"9999Z/3963", "9999Z/3962"}
	if len(src.itemCalls) != 2 || src.itemCalls[0] != want[0] || src.itemCalls[1] != want[1] {
		t.Errorf("expected item calls %v, got %v", want, src.itemCalls)
	}
}

func TestScheduleCalculator_FallbackSkippedWhenPinned(t *testing.T) {
	src := newFakeSource()
	calc := NewScheduleCalculator(src, DefaultFees(), WithPreviousScheduleFallback(true))

	_, err := calc.Quote(context.Background(), ScheduleRequest{PBSCode: "9999Z", ScheduleCode: "3963", Quantity: 1})
	if !errors.Is(err, pbsapi.ErrNotFound) {
		t.Fatalf("expected pbsapi.ErrNotFound, got %v", err)
	}
	if len(src.itemCalls) != 1 {
		t.Errorf("expected one item call, got %v", src.itemCalls)
	}
}

func TestScheduleCalculator_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		src  func(*fakeSource)
	}{
		{"schedule", func(f *fakeSource) { f.resolveErr = pbsapi.ErrUnauthorized }},
		{"item", func(f *fakeSource) {
			f.itemErr = &pbsapi.StatusError{Endpoint: "items", StatusCode: http.StatusTooManyRequests}
		}},
		{"rules", func(f *fakeSource) { f.rulesErr = errors.New("connection reset") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			tt.src(src)
			_, err := NewScheduleCalculator(src, DefaultFees()).Quote(context.Background(),
				ScheduleRequest{PBSCode: "1234A", Quantity: 1})
			if err == nil {
				t.Fatal("expected an error")
			}
			if Classify(err) != KindUpstream {
				t.Errorf("expected upstream kind, got %s", Classify(err))
			}
		})
	}
}

func TestScheduleCalculator_InvalidRequest(t *testing.T) {
	src := newFakeSource()
	calc := NewScheduleCalculator(src, DefaultFees())

	for _, req := range []ScheduleRequest{
		{PBSCode: "1234A", Quantity: 0},
		{PBSCode: "  ", Quantity: 1},
	} {
		_, err := calc.Quote(context.Background(), req)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%+v: expected ErrInvalidRequest, got %v", req, err)
		}
	}
	if len(src.resolved)+len(src.itemCalls) != 0 {
		t.Error("invalid requests must not reach the source")
	}
}

type stubBook struct {
	rec FlatFileRecord
	err error
}

func (s stubBook) Lookup(context.Context, string) (FlatFileRecord, error) { return s.rec, s.err }

func TestFlatFileCalculator_Quote(t *testing.T) {
	calc := NewFlatFileCalculator(stubBook{rec: FlatFileRecord{CatalogueID: "09300000000001", BasePrice: dec("10")}}, DefaultFees())

	q, err := calc.Quote(context.Background(), FlatFileRequest{GTIN: "09300000000001", Quantity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "FDP", q.FDP, "41.81")
	if q.Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", q.Quantity)
	}

	if _, err := calc.Quote(context.Background(), FlatFileRequest{GTIN: "09300000000001"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for a zero quantity, got %v", err)
	}
}

func TestFlatFileCalculator_LookupError(t *testing.T) {
	calc := NewFlatFileCalculator(stubBook{err: fmt.Errorf("%w: bad", ErrDataIntegrity)}, DefaultFees())

	_, err := calc.Quote(context.Background(), FlatFileRequest{GTIN: "X", Quantity: 1})
	if Classify(err) != KindDataIntegrity {
		t.Errorf("expected data-integrity kind, got %s", Classify(err))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		kind   ErrorKind
		status int
	}{
		{fmt.Errorf("wrap: %w", ErrInvalidRequest), KindInvalid, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", ErrNotFound), KindNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", pbsapi.ErrNotFound), KindNotFound, http.StatusNotFound},
		{ErrConfig, KindConfig, http.StatusInternalServerError},
		{pbsapi.ErrMalformedRecord, KindDataIntegrity, http.StatusInternalServerError},
		{fmt.Errorf("%w for items", pbsapi.ErrUnauthorized), KindUpstream, http.StatusBadGateway},
		{&pbsapi.StatusError{StatusCode: 500}, KindUpstream, http.StatusBadGateway},
		{fmt.Errorf("pbs items: %w", context.DeadlineExceeded), KindTimeout, http.StatusGatewayTimeout},
		{context.Canceled, KindUpstream, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.kind {
			t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.kind)
		}
		if got := Classify(tt.err).HTTPStatus(); got != tt.status {
			t.Errorf("status for %v = %d, want %d", tt.err, got, tt.status)
		}
	}
}
