package analysis

import "sort"

// PolicyConfig holds the fixed thresholds for the policy-compliance lists of
// the combined view.
type PolicyConfig struct {
	MaxCommissionPct  float64 `json:"maxCommissionPct"`
	MaxJitoCommission int64   `json:"maxJitoCommissionBps"`
}

// DefaultPolicy flags validators charging more than 10% commission or more
// than 10% (1000 bps) MEV tip commission.
var DefaultPolicy = PolicyConfig{
	MaxCommissionPct:  10,
	MaxJitoCommission: 1000,
}

// CombinedValidator is one validator in the cross-authority union, with the
// per-source stake contributions retained.
type CombinedValidator struct {
	Voter         string             `json:"voter"`
	ActiveStake   float64            `json:"activeStake"`
	StakeBySource map[string]float64 `json:"stakeBySource"`
	Info          ValidatorInfo      `json:"info"`
}

// PolicyViolation names a validator breaching one of the policy thresholds.
type PolicyViolation struct {
	Voter         string  `json:"voter"`
	Name          string  `json:"name,omitempty"`
	CommissionPct float64 `json:"commissionPct,omitempty"`
	CommissionBps int64   `json:"commissionBps,omitempty"`
	ActiveStake   float64 `json:"activeStake"`
}

// CombinedReport is the cross-authority section of a report: the deduplicated
// validator union with metrics recomputed over the merged distribution.
type CombinedReport struct {
	Validators       int                  `json:"validators"`
	ActiveValidators int                  `json:"activeValidators"`
	TotalActiveStake float64              `json:"totalActiveStake"`
	Concentration    ConcentrationMetrics `json:"concentration"`
	ASNOrg           []BreakdownEntry     `json:"asnOrg"`
	TopASNPct        float64              `json:"topAsnPct"`
	Top5ASNPct       float64              `json:"top5AsnPct"`
	HighCommission   []PolicyViolation    `json:"highCommission,omitempty"`
	HighMEVTips      []PolicyViolation    `json:"highMevTips,omitempty"`
	TopValidators    []*CombinedValidator `json:"topValidators,omitempty"`
}

// Combine unions per-authority validator sets into one deduplicated
// distribution and recomputes every concentration metric from the merged
// stakes. Metrics are never additive across sources; averaging per-source
// results would be wrong, so everything is recalculated here.
//
// Authorities are visited in sorted name order so that repeated runs over
// the same inputs produce identical reports.
func Combine(byAuthority map[string][]*ValidatorAggregate, policy PolicyConfig) *CombinedReport {
	names := make([]string, 0, len(byAuthority))
	for name := range byAuthority {
		names = append(names, name)
	}
	sort.Strings(names)

	byVoter := make(map[string]*CombinedValidator)
	var union []*CombinedValidator
	for _, name := range names {
		for _, agg := range byAuthority[name] {
			cv, ok := byVoter[agg.Voter]
			if !ok {
				cv = &CombinedValidator{
					Voter:         agg.Voter,
					StakeBySource: make(map[string]float64),
					Info:          agg.Info,
				}
				byVoter[agg.Voter] = cv
				union = append(union, cv)
			}
			// One contribution per source per voter; the aggregates are
			// already folded per authority.
			cv.StakeBySource[name] += agg.ActiveStake
			cv.ActiveStake += agg.ActiveStake
		}
	}

	sort.SliceStable(union, func(i, j int) bool {
		return union[i].ActiveStake > union[j].ActiveStake
	})

	aggregates := make([]*ValidatorAggregate, 0, len(union))
	active := 0
	for _, cv := range union {
		if cv.ActiveStake > 0 {
			active++
		}
		aggregates = append(aggregates, &ValidatorAggregate{
			Voter:       cv.Voter,
			ActiveStake: cv.ActiveStake,
			Info:        cv.Info,
		})
	}

	distribution := ActiveDistribution(aggregates)
	total := 0.0
	for _, stake := range distribution {
		total += stake
	}

	asn := BuildBreakdown(aggregates, func(a *ValidatorAggregate) string {
		return a.Info.ASNOrg
	})

	report := &CombinedReport{
		Validators:       len(union),
		ActiveValidators: active,
		TotalActiveStake: total,
		Concentration:    ComputeConcentration(distribution),
		ASNOrg:           asn,
		TopASNPct:        topBreakdownPct(asn, 1),
		Top5ASNPct:       topBreakdownPct(asn, 5),
	}

	for _, cv := range union {
		if cv.Info.CommissionPct != nil && *cv.Info.CommissionPct > policy.MaxCommissionPct {
			report.HighCommission = append(report.HighCommission, PolicyViolation{
				Voter:         cv.Voter,
				Name:          cv.Info.Name,
				CommissionPct: *cv.Info.CommissionPct,
				ActiveStake:   cv.ActiveStake,
			})
		}
		if cv.Info.JitoCommissionBps != nil && *cv.Info.JitoCommissionBps > policy.MaxJitoCommission {
			report.HighMEVTips = append(report.HighMEVTips, PolicyViolation{
				Voter:         cv.Voter,
				Name:          cv.Info.Name,
				CommissionBps: *cv.Info.JitoCommissionBps,
				ActiveStake:   cv.ActiveStake,
			})
		}
	}

	if len(union) > 10 {
		report.TopValidators = union[:10]
	} else {
		report.TopValidators = union
	}

	return report
}

func topBreakdownPct(entries []BreakdownEntry, n int) float64 {
	if n > len(entries) {
		n = len(entries)
	}
	pct := 0.0
	for _, e := range entries[:n] {
		pct += e.Pct
	}
	return pct
}
