package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchTier ranks the evidence behind a match, strongest first
type MatchTier int

const (
	// TierExactDateReferenceAmount pairs records agreeing on date, reference and amount
	TierExactDateReferenceAmount MatchTier = iota + 1
	// TierDateReference pairs records agreeing on date and reference
	TierDateReference
	// TierDateAmount pairs records agreeing on date and amount
	TierDateAmount
)

// AllTiers lists the tiers in evaluation order
var AllTiers = []MatchTier{TierExactDateReferenceAmount, TierDateReference, TierDateAmount}

// String returns the string representation of MatchTier
func (t MatchTier) String() string {
	switch t {
	case TierExactDateReferenceAmount:
		return "ExactDateReferenceAmount"
	case TierDateReference:
		return "DateReference"
	case TierDateAmount:
		return "DateAmount"
	default:
		return "Unknown"
	}
}

// Label returns a human readable description of the tier
func (t MatchTier) Label() string {
	switch t {
	case TierExactDateReferenceAmount:
		return "exact (date + reference + amount)"
	case TierDateReference:
		return "date + reference"
	case TierDateAmount:
		return "date + amount"
	default:
		return "unknown"
	}
}

// IsValid checks if the tier is one of the known tiers
func (t MatchTier) IsValid() bool {
	return t >= TierExactDateReferenceAmount && t <= TierDateAmount
}

// MarshalText implements encoding.TextMarshaler
func (t MatchTier) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid match tier %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *MatchTier) UnmarshalText(text []byte) error {
	for _, tier := range AllTiers {
		if tier.String() == string(text) {
			*t = tier
			return nil
		}
	}
	return fmt.Errorf("unknown match tier %q", string(text))
}

// Side identifies which input dataset a record came from
type Side int

// Dataset sides
const (
	SideLeft Side = iota + 1
	SideRight
)

// String returns the string representation of Side
func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Side) MarshalText() ([]byte, error) {
	if s != SideLeft && s != SideRight {
		return nil, fmt.Errorf("invalid side %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "left":
		*s = SideLeft
	case "right":
		*s = SideRight
	default:
		return fmt.Errorf("unknown side %q", string(text))
	}
	return nil
}

// ResultStatus tags a MatchResult
type ResultStatus string

// Result statuses
const (
	StatusMatched   ResultStatus = "matched"
	StatusUnmatched ResultStatus = "unmatched"
)

// MatchResult is either a matched pair with its tier, or a single record
// from one side that found no partner.
type MatchResult struct {
	Status ResultStatus      `json:"status"`
	Tier   MatchTier         `json:"tier,omitempty"`
	Side   Side              `json:"side,omitempty"`
	Left   *NormalizedRecord `json:"left,omitempty"`
	Right  *NormalizedRecord `json:"right,omitempty"`
}

// NewMatched creates a matched result from copies of both records
func NewMatched(left, right NormalizedRecord, tier MatchTier) MatchResult {
	return MatchResult{Status: StatusMatched, Tier: tier, Left: &left, Right: &right}
}

// NewUnmatched creates an unmatched result for one side
func NewUnmatched(side Side, record NormalizedRecord) MatchResult {
	result := MatchResult{Status: StatusUnmatched, Side: side}
	if side == SideLeft {
		result.Left = &record
	} else {
		result.Right = &record
	}
	return result
}

// IsMatched reports whether the result is a matched pair
func (m MatchResult) IsMatched() bool {
	return m.Status == StatusMatched
}

// Record returns the record of an unmatched result, or the left record of a match
func (m MatchResult) Record() *NormalizedRecord {
	if m.Status == StatusUnmatched && m.Side == SideRight {
		return m.Right
	}
	return m.Left
}

// ReportSummary aggregates the outcome of one reconciliation run
type ReportSummary struct {
	LeftName             string          `json:"left_name"`
	RightName            string          `json:"right_name"`
	LeftRecords          int             `json:"left_records"`
	RightRecords         int             `json:"right_records"`
	TotalResults         int             `json:"total_results"`
	TotalMatched         int             `json:"total_matched"`
	ExactMatches         int             `json:"exact_matches"`
	DateReferenceMatches int             `json:"date_reference_matches"`
	DateAmountMatches    int             `json:"date_amount_matches"`
	UnmatchedLeft        int             `json:"unmatched_left"`
	UnmatchedRight       int             `json:"unmatched_right"`
	MatchedAmount        decimal.Decimal `json:"matched_amount"`
	UnmatchedLeftAmount  decimal.Decimal `json:"unmatched_left_amount"`
	UnmatchedRightAmount decimal.Decimal `json:"unmatched_right_amount"`
	UnmatchedAmount      decimal.Decimal `json:"unmatched_amount"`
	MatchRate            float64         `json:"match_rate"`
}

// Balanced reports whether every input record is accounted for exactly once
func (s ReportSummary) Balanced() bool {
	return s.LeftRecords+s.RightRecords == 2*s.TotalMatched+s.UnmatchedLeft+s.UnmatchedRight
}

// TierCount returns the number of matches of one tier
func (s ReportSummary) TierCount(tier MatchTier) int {
	switch tier {
	case TierExactDateReferenceAmount:
		return s.ExactMatches
	case TierDateReference:
		return s.DateReferenceMatches
	case TierDateAmount:
		return s.DateAmountMatches
	default:
		return 0
	}
}

// MatchReport is the ordered outcome of one reconciliation run
type MatchReport struct {
	// Strategy names the matching order that produced the results
	Strategy string        `json:"strategy,omitempty"`
	Summary  ReportSummary `json:"summary"`
	Results  []MatchResult `json:"results"`
}

// NewMatchReport builds a report and its summary from ordered results
func NewMatchReport(leftName, rightName string, leftRecords, rightRecords int, results []MatchResult) *MatchReport {
	if results == nil {
		results = []MatchResult{}
	}

	summary := ReportSummary{
		LeftName:             leftName,
		RightName:            rightName,
		LeftRecords:          leftRecords,
		RightRecords:         rightRecords,
		TotalResults:         len(results),
		MatchedAmount:        decimal.Zero,
		UnmatchedLeftAmount:  decimal.Zero,
		UnmatchedRightAmount: decimal.Zero,
	}

	for _, r := range results {
		if r.IsMatched() {
			summary.TotalMatched++
			summary.MatchedAmount = summary.MatchedAmount.Add(r.Left.Amount)
			switch r.Tier {
			case TierExactDateReferenceAmount:
				summary.ExactMatches++
			case TierDateReference:
				summary.DateReferenceMatches++
			case TierDateAmount:
				summary.DateAmountMatches++
			}
			continue
		}

		if r.Side == SideLeft {
			summary.UnmatchedLeft++
			summary.UnmatchedLeftAmount = summary.UnmatchedLeftAmount.Add(r.Left.Amount)
		} else {
			summary.UnmatchedRight++
			summary.UnmatchedRightAmount = summary.UnmatchedRightAmount.Add(r.Right.Amount)
		}
	}

	summary.UnmatchedAmount = summary.UnmatchedLeftAmount.Add(summary.UnmatchedRightAmount)
	if total := leftRecords + rightRecords; total > 0 {
		summary.MatchRate = float64(2*summary.TotalMatched) / float64(total) * 100
	}

	return &MatchReport{Summary: summary, Results: results}
}

// Matches returns the matched results in report order
func (r *MatchReport) Matches() []MatchResult {
	var out []MatchResult
	for _, res := range r.Results {
		if res.IsMatched() {
			out = append(out, res)
		}
	}
	return out
}

// Unmatched returns the unmatched results of one side in report order
func (r *MatchReport) Unmatched(side Side) []MatchResult {
	var out []MatchResult
	for _, res := range r.Results {
		if !res.IsMatched() && res.Side == side {
			out = append(out, res)
		}
	}
	return out
}
