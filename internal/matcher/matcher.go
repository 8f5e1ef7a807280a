package matcher

import (
	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/pkg/logger"
)

// MatchingEngine is the core engine responsible for record matching. An
// engine holds no state between runs and may be shared by goroutines.
type MatchingEngine struct {
	Config *MatchingConfig
	logger logger.Logger
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &MatchingEngine{
		Config: config,
		logger: logger.NewNopLogger(),
	}
}

// WithLogger sets the logger used for run diagnostics
func (me *MatchingEngine) WithLogger(l logger.Logger) *MatchingEngine {
	if l != nil {
		me.logger = l.WithComponent("matcher")
	}
	return me
}

// run carries the per-invocation matched markers
type run struct {
	left         []models.NormalizedRecord
	right        *RecordIndex
	matchedLeft  []bool
	matchedRight []bool
	results      []models.MatchResult
}

// Reconcile pairs left records with right records and returns the ordered
// report: matches in the order they were found, then unmatched left records,
// then unmatched right records, each in input order. Records without a date
// or a positive amount never match. The inputs are not modified.
func (me *MatchingEngine) Reconcile(left, right []models.NormalizedRecord, leftName, rightName string) *models.MatchReport {
	r := &run{
		left:         left,
		right:        NewRecordIndex(right),
		matchedLeft:  make([]bool, len(left)),
		matchedRight: make([]bool, len(right)),
		results:      make([]models.MatchResult, 0, len(left)+len(right)),
	}

	switch me.Config.Strategy {
	case StrategyRecordFirst:
		r.matchRecordFirst()
	default:
		r.matchTierFirst()
	}

	matched := len(r.results)

	for i, rec := range left {
		if !r.matchedLeft[i] {
			r.results = append(r.results, models.NewUnmatched(models.SideLeft, rec))
		}
	}
	for i, rec := range right {
		if !r.matchedRight[i] {
			r.results = append(r.results, models.NewUnmatched(models.SideRight, rec))
		}
	}

	report := models.NewMatchReport(leftName, rightName, len(left), len(right), r.results)
	report.Strategy = me.Config.Strategy.String()

	me.logger.WithFields(logger.Fields{
		"strategy":        me.Config.Strategy.String(),
		"left":            len(left),
		"right":           len(right),
		"matched":         matched,
		"unmatched_left":  report.Summary.UnmatchedLeft,
		"unmatched_right": report.Summary.UnmatchedRight,
		"index":           r.right.Stats(),
	}).Debug("Reconciliation finished")

	return report
}

func (r *run) matchTierFirst() {
	for _, tier := range models.AllTiers {
		for i := range r.left {
			if r.matchedLeft[i] || !r.left[i].Eligible() {
				continue
			}
			r.tryTier(i, tier)
		}
	}
}

func (r *run) matchRecordFirst() {
	for i := range r.left {
		if !r.left[i].Eligible() {
			continue
		}
		if r.tryTier(i, models.TierExactDateReferenceAmount) {
			continue
		}
		r.tryTier(i, models.TierDateReference)
	}

	for i := range r.left {
		if r.matchedLeft[i] || !r.left[i].Eligible() {
			continue
		}
		r.tryTier(i, models.TierDateAmount)
	}
}

// tryTier matches left record i with the first unmatched right candidate
// accepted by tier
func (r *run) tryTier(i int, tier models.MatchTier) bool {
	rec := r.left[i]
	for _, j := range r.right.Candidates(tier, rec) {
		if r.matchedRight[j] {
			continue
		}
		candidate := r.right.Records[j]
		if !Accepts(tier, rec, candidate) {
			continue
		}

		r.matchedLeft[i] = true
		r.matchedRight[j] = true
		r.results = append(r.results, models.NewMatched(rec, candidate, tier))
		return true
	}
	return false
}

// Accepts reports whether a and b satisfy the equality rules of tier
func Accepts(tier models.MatchTier, a, b models.NormalizedRecord) bool {
	if a.Date == "" || a.Date != b.Date {
		return false
	}

	switch tier {
	case models.TierExactDateReferenceAmount:
		return a.Reference != "" && a.Reference == b.Reference && AmountsEqual(a, b)
	case models.TierDateReference:
		return a.Reference != "" && a.Reference == b.Reference
	case models.TierDateAmount:
		return AmountsEqual(a, b)
	default:
		return false
	}
}

// AmountsEqual reports whether two amounts differ by less than AmountTolerance
func AmountsEqual(a, b models.NormalizedRecord) bool {
	return a.Amount.Sub(b.Amount).Abs().LessThan(AmountTolerance)
}

// ValidateConfiguration validates the current configuration
func (me *MatchingEngine) ValidateConfiguration() error {
	return me.Config.Validate()
}
