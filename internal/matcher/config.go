// Package matcher pairs records of two datasets using greedy, tiered,
// one-to-one matching.
//
// Records are compared on canonical date, reference code and amount. Three
// tiers are tried in decreasing order of evidence:
//   - ExactDateReferenceAmount: same date, same reference, amounts within half a cent
//   - DateReference: same date and reference, any amount
//   - DateAmount: same date, amounts within half a cent, any reference
//
// Lookups go through hash indexes built over the right-hand dataset. Within
// a key the first unmatched candidate in original order wins, so identical
// inputs always produce identical reports. The engine does not search for a
// maximum-cardinality assignment.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.Strategy = matcher.StrategyRecordFirst
//
//	engine := matcher.NewMatchingEngine(config)
//	report := engine.Reconcile(bankRecords, ledgerRecords, "bank", "ledger")
package matcher

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountTolerance is the largest difference for two amounts to count as equal
var AmountTolerance = decimal.New(5, -3)

// Strategy controls the order in which tiers are applied
type Strategy int

const (
	// StrategyTierFirst runs one full pass over the left records per tier:
	// every record gets a chance at Tier 1 before any record tries Tier 2.
	StrategyTierFirst Strategy = iota

	// StrategyRecordFirst tries Tier 1 and then Tier 2 for each left record
	// in a single pass, followed by a separate Tier 3 pass. A Tier 2 pairing
	// of an earlier record can consume a candidate that a later record would
	// have matched exactly.
	StrategyRecordFirst
)

// String returns the string representation of Strategy
func (s Strategy) String() string {
	switch s {
	case StrategyTierFirst:
		return "tier-first"
	case StrategyRecordFirst:
		return "record-first"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a strategy name into a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tier-first", "tier":
		return StrategyTierFirst, nil
	case "record-first", "record", "legacy":
		return StrategyRecordFirst, nil
	default:
		return 0, fmt.Errorf("unknown matching strategy %q (expected tier-first or record-first)", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MatchingConfig holds the options of a matching run
type MatchingConfig struct {
	Strategy Strategy `json:"strategy"`
}

// DefaultMatchingConfig returns the default configuration
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{Strategy: StrategyTierFirst}
}

// Validate checks the configuration
func (c *MatchingConfig) Validate() error {
	if c.Strategy != StrategyTierFirst && c.Strategy != StrategyRecordFirst {
		return fmt.Errorf("invalid matching strategy %d", int(c.Strategy))
	}
	return nil
}

// Clone returns a copy of the configuration
func (c *MatchingConfig) Clone() *MatchingConfig {
	clone := *c
	return &clone
}
