package analysis

import (
	"sort"
	"time"
)

// AssemblerConfig carries the configuration data the report composition
// needs: bucket boundaries, the continent table, policy thresholds, and the
// yield rate used for the annualized reward estimate. Zero values fall back
// to package defaults.
type AssemblerConfig struct {
	YieldRate  float64
	Buckets    []StakeBucket
	Continents map[string]string
	Policy     PolicyConfig
	TopN       int
}

// DefaultYieldRate is a rough network staking APY used only for the
// convenience reward estimate in stake stats.
const DefaultYieldRate = 0.07

func (cfg AssemblerConfig) withDefaults() AssemblerConfig {
	if cfg.YieldRate == 0 {
		cfg.YieldRate = DefaultYieldRate
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = DefaultStakeBuckets
	}
	if cfg.Continents == nil {
		cfg.Continents = DefaultContinentByCountry
	}
	if cfg.Policy == (PolicyConfig{}) {
		cfg.Policy = DefaultPolicy
	}
	if cfg.TopN == 0 {
		cfg.TopN = 10
	}
	return cfg
}

// AssembleReport composes per-authority sections and, when more than one
// authority is present, the combined cross-authority section into one report
// value. Pure composition: all computation happens in the components it
// calls, and the returned report is never mutated afterwards.
func AssembleReport(generatedAt time.Time, runID string, epoch EpochInfo, inputs []AuthorityInput, cfg AssemblerConfig) *Report {
	cfg = cfg.withDefaults()

	report := &Report{
		GeneratedAt: generatedAt,
		RunID:       runID,
		Epoch:       epoch,
		Authorities: make([]AuthorityReport, 0, len(inputs)),
	}

	byAuthority := make(map[string][]*ValidatorAggregate, len(inputs))
	for _, input := range inputs {
		report.Authorities = append(report.Authorities, assembleAuthority(input, cfg))
		byAuthority[input.Authority] = input.Aggregates
	}

	if len(inputs) > 1 {
		report.Combined = Combine(byAuthority, cfg.Policy)
	}

	return report
}

func assembleAuthority(input AuthorityInput, cfg AssemblerConfig) AuthorityReport {
	distribution := ActiveDistribution(input.Aggregates)

	section := AuthorityReport{
		Authority:        input.Authority,
		StakeAccounts:    input.StakeAccounts,
		EmptyAccounts:    input.EmptyAccounts,
		Validators:       len(input.Aggregates),
		ActiveValidators: len(distribution),
		Stats:            computeStats(input.Aggregates, distribution, cfg.YieldRate),
		Concentration:    ComputeConcentration(distribution),
		Breakdowns:       BuildBreakdowns(input.Aggregates, cfg.Continents),
		Buckets:          BucketValidators(input.Aggregates, cfg.Buckets),
	}

	markSuperminority(input.Aggregates, section.Concentration.SuperminorityCount)

	if len(input.Aggregates) > cfg.TopN {
		section.TopValidators = input.Aggregates[:cfg.TopN]
	} else {
		section.TopValidators = input.Aggregates
	}

	return section
}

// markSuperminority flags the top validators whose combined stake can halt
// consensus. Aggregates are already sorted by active stake descending, so
// the flag lands on the first count entries with active stake.
func markSuperminority(aggregates []*ValidatorAggregate, count int) {
	for _, agg := range aggregates {
		if count == 0 {
			return
		}
		if agg.ActiveStake > 0 {
			agg.Info.Superminority = true
			count--
		}
	}
}

func computeStats(aggregates []*ValidatorAggregate, distribution []float64, yieldRate float64) StakeStats {
	var stats StakeStats
	for _, agg := range aggregates {
		stats.TotalActive += agg.ActiveStake
		stats.TotalDeactivating += agg.DeactivatingStake
	}

	if len(distribution) > 0 {
		// Distribution is descending.
		stats.Max = distribution[0]
		stats.Min = distribution[len(distribution)-1]
		stats.Mean = stats.TotalActive / float64(len(distribution))
		stats.Median = median(distribution)
	}

	stats.EstimatedAnnualRewards = stats.TotalActive * yieldRate
	return stats
}

func median(values []float64) float64 {
	ascending := make([]float64, len(values))
	copy(ascending, values)
	sort.Float64s(ascending)

	n := len(ascending)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return ascending[n/2]
	}
	return (ascending[n/2-1] + ascending[n/2]) / 2
}
