package pbsapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const schedulePageSize = 100

// Schedule is one monthly fee schedule as published by the API.
type Schedule struct {
	Code           string
	EffectiveMonth string
	EffectiveYear  int
}

type scheduleRecord struct {
	Code           flexString `json:"schedule_code"`
	EffectiveMonth string     `json:"effective_month"`
	EffectiveYear  flexString `json:"effective_year"`
}

// Period picks which calendar month a schedule lookup targets.
type Period int

const (
	PeriodCurrent Period = iota
	PeriodPrevious
)

// ParsePeriod accepts "", "current" and "previous".
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "current":
		return PeriodCurrent, nil
	case "previous":
		return PeriodPrevious, nil
	}
	return PeriodCurrent, fmt.Errorf("unknown schedule period %q", s)
}

func (p Period) String() string {
	if p == PeriodPrevious {
		return "previous"
	}
	return "current"
}

// reference returns the date whose month and year identify the schedule.
// The previous period is the last day of the month before now.
func (p Period) reference(now time.Time) time.Time {
	if p == PeriodPrevious {
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return first.AddDate(0, 0, -1)
	}
	return now
}

// Schedules lists the first page of published schedules. Records that do not
// decode are skipped.
func (c *Client) Schedules(ctx context.Context) ([]Schedule, error) {
	data, err := c.list(ctx, "/schedules", url.Values{"limit": {strconv.Itoa(schedulePageSize)}})
	if err != nil {
		return nil, err
	}

	out := make([]Schedule, 0, len(data))
	for _, raw := range data {
		var rec scheduleRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(string(rec.EffectiveYear)))
		if err != nil {
			continue
		}
		out = append(out, Schedule{
			Code:           string(rec.Code),
			EffectiveMonth: rec.EffectiveMonth,
			EffectiveYear:  year,
		})
	}
	return out, nil
}

// ResolveSchedule returns the code of the schedule effective in the given
// period.
func (c *Client) ResolveSchedule(ctx context.Context, period Period) (string, error) {
	ref := period.reference(c.now())
	month := strings.ToUpper(ref.Month().String())
	year := ref.Year()

	schedules, err := c.Schedules(ctx)
	if err != nil {
		return "", err
	}
	for _, s := range schedules {
		if strings.EqualFold(s.EffectiveMonth, month) && s.EffectiveYear == year && s.Code != "" {
			return s.Code, nil
		}
	}
	return "", fmt.Errorf("%w: no schedule for %s %d", ErrNotFound, month, year)
}
