package pbsapi

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// CommonwealthPriceMnemonic marks the dispensing rule whose Commonwealth
// price for maximum quantity is the authoritative DPMQ.
const CommonwealthPriceMnemonic = "S90-CP"

const rulePageSize = 50

// DispensingRule is one item/dispensing-rule relationship. Absent or
// malformed amounts are nil.
type DispensingRule struct {
	Mnemonic                string
	CommonwealthPriceMaxQty *decimal.Decimal
	BrandPremium            *decimal.Decimal
}

// RuleSummary folds an item's dispensing rules into the two figures pricing
// needs. DPMQ is nil when no S90-CP rule carries a price.
type RuleSummary struct {
	DPMQ         *decimal.Decimal
	BrandPremium decimal.Decimal
}

type ruleRecord struct {
	Mnemonic     string          `json:"dispensing_rule_mnem"`
	MaxQtyPrice  json.RawMessage `json:"cmnwlth_dsp_price_max_qty"`
	BrandPremium json.RawMessage `json:"brand_premium"`
}

// Summarize applies the selection rules: the DPMQ comes from the last S90-CP
// rule with a usable price, the brand premium from the last rule with a
// usable premium, defaulting to zero.
func Summarize(rules []DispensingRule) RuleSummary {
	sum := RuleSummary{BrandPremium: decimal.Zero}
	for _, r := range rules {
		if strings.EqualFold(r.Mnemonic, CommonwealthPriceMnemonic) && r.CommonwealthPriceMaxQty != nil {
			v := *r.CommonwealthPriceMaxQty
			sum.DPMQ = &v
		}
		if r.BrandPremium != nil {
			sum.BrandPremium = *r.BrandPremium
		}
	}
	return sum
}

// DispensingRules fetches up to 50 rule relationships for an item. Records
// or fields that do not decode are skipped rather than failing the lookup.
func (c *Client) DispensingRules(ctx context.Context, liItemID string) ([]DispensingRule, error) {
	params := url.Values{
		"li_item_id": {liItemID},
		"limit":      {strconv.Itoa(rulePageSize)},
	}
	data, err := c.list(ctx, "/item-dispensing-rule-relationships", params)
	if err != nil {
		return nil, err
	}

	rules := make([]DispensingRule, 0, len(data))
	for _, raw := range data {
		var rec ruleRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		rule := DispensingRule{Mnemonic: rec.Mnemonic}
		if v, ok := parseAmount(rec.MaxQtyPrice); ok {
			rule.CommonwealthPriceMaxQty = &v
		}
		if v, ok := parseAmount(rec.BrandPremium); ok {
			rule.BrandPremium = &v
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// RuleSummary fetches an item's dispensing rules and folds them with Summarize.
func (c *Client) RuleSummary(ctx context.Context, liItemID string) (RuleSummary, error) {
	rules, err := c.DispensingRules(ctx, liItemID)
	if err != nil {
		return RuleSummary{}, err
	}
	return Summarize(rules), nil
}
