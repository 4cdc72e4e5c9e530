package pbsapi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Item is one medicine's listing in a schedule.
type Item struct {
	PBSCode         string          `json:"pbs_code"`
	ScheduleCode    string          `json:"schedule_code"`
	DeterminedPrice decimal.Decimal `json:"determined_price"`
	LIItemID        string          `json:"li_item_id"`
}

type itemRecord struct {
	PBSCode         flexString      `json:"pbs_code"`
	DeterminedPrice json.RawMessage `json:"determined_price"`
	LIItemID        flexString      `json:"li_item_id"`
}

// Item fetches the listing for pbsCode in the given schedule. The returned
// item carries scheduleCode regardless of what the API echoes back.
func (c *Client) Item(ctx context.Context, pbsCode, scheduleCode string) (*Item, error) {
	params := url.Values{
		"pbs_code":      {pbsCode},
		"schedule_code": {scheduleCode},
		"limit":         {"1"},
	}
	data, err := c.list(ctx, "/items", params)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: item %s in schedule %s", ErrNotFound, pbsCode, scheduleCode)
	}

	var rec itemRecord
	if err := json.Unmarshal(data[0], &rec); err != nil {
		return nil, fmt.Errorf("%w: item %s: %v", ErrMalformedRecord, pbsCode, err)
	}
	price, ok := parseAmount(rec.DeterminedPrice)
	if !ok {
		return nil, fmt.Errorf("%w: item %s has no usable determined_price", ErrMalformedRecord, pbsCode)
	}

	item := &Item{
		PBSCode:         string(rec.PBSCode),
		ScheduleCode:    scheduleCode,
		DeterminedPrice: price,
		LIItemID:        string(rec.LIItemID),
	}
	if item.PBSCode == "" {
		item.PBSCode = pbsCode
	}
	return item, nil
}
