package analysis

import (
	"sort"
	"strconv"
)

// UnknownKey is the breakdown category used when the underlying metadata
// field is absent.
const UnknownKey = "Unknown"

// OtherContinent is the continent bucket for countries missing from the
// lookup table.
const OtherContinent = "Other"

// DefaultStakeBuckets are the fixed half-open ranges used for stake-size
// bucketing when the caller does not supply its own.
var DefaultStakeBuckets = []StakeBucket{
	{Label: "0-1k", Min: 0, Max: 1_000},
	{Label: "1k-10k", Min: 1_000, Max: 10_000},
	{Label: "10k-50k", Min: 10_000, Max: 50_000},
	{Label: "50k-100k", Min: 50_000, Max: 100_000},
	{Label: "100k-500k", Min: 100_000, Max: 500_000},
	{Label: "500k+", Min: 500_000, Max: 0},
}

// BuildBreakdown accumulates count and active stake per category over every
// validator with positive active stake, substituting UnknownKey for empty
// category values. Entries are sorted by stake descending, then key
// ascending for determinism among equals.
func BuildBreakdown(aggregates []*ValidatorAggregate, keyOf func(*ValidatorAggregate) string) []BreakdownEntry {
	type tally struct {
		count int
		stake float64
	}
	totals := make(map[string]*tally)
	totalActive := 0.0

	for _, agg := range aggregates {
		if agg.ActiveStake <= 0 {
			continue
		}
		key := keyOf(agg)
		if key == "" {
			key = UnknownKey
		}
		t, ok := totals[key]
		if !ok {
			t = &tally{}
			totals[key] = t
		}
		t.count++
		t.stake += agg.ActiveStake
		totalActive += agg.ActiveStake
	}

	entries := make([]BreakdownEntry, 0, len(totals))
	for key, t := range totals {
		entry := BreakdownEntry{Key: key, Count: t.count, Stake: t.stake}
		if totalActive > 0 {
			entry.Pct = t.stake / totalActive * 100
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Stake != entries[j].Stake {
			return entries[i].Stake > entries[j].Stake
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}

// BuildBreakdowns computes all standard dimensional breakdowns for a
// validator set. The continent table maps country name to continent name and
// is injected so the engine carries no geographic knowledge of its own; a
// nil table falls back to DefaultContinentByCountry.
func BuildBreakdowns(aggregates []*ValidatorAggregate, continents map[string]string) Breakdowns {
	if continents == nil {
		continents = DefaultContinentByCountry
	}
	return Breakdowns{
		Country: BuildBreakdown(aggregates, func(a *ValidatorAggregate) string {
			return a.Info.Country
		}),
		Continent: BuildBreakdown(aggregates, func(a *ValidatorAggregate) string {
			return ContinentOf(a.Info.Country, continents)
		}),
		City: BuildBreakdown(aggregates, func(a *ValidatorAggregate) string {
			return a.Info.City
		}),
		ASNOrg: BuildBreakdown(aggregates, func(a *ValidatorAggregate) string {
			return a.Info.ASNOrg
		}),
		Version: BuildBreakdown(aggregates, func(a *ValidatorAggregate) string {
			return a.Info.SoftwareVersion
		}),
		Commission: BuildBreakdown(aggregates, commissionKey),
	}
}

// ContinentOf maps a country name through the injected table. Unmapped
// countries land in OtherContinent; a missing country stays Unknown.
func ContinentOf(country string, continents map[string]string) string {
	if country == "" {
		return UnknownKey
	}
	if continent, ok := continents[country]; ok {
		return continent
	}
	return OtherContinent
}

func commissionKey(agg *ValidatorAggregate) string {
	if agg.Info.CommissionPct == nil {
		return UnknownKey
	}
	return strconv.FormatFloat(*agg.Info.CommissionPct, 'f', -1, 64) + "%"
}

// BucketValidators partitions validators with positive active stake into the
// given ordered buckets. Ranges are half-open [Min, Max) with first match
// winning, so every validator lands in exactly one bucket. Every bucket
// appears in the output, including empty ones, preserving input order.
func BucketValidators(aggregates []*ValidatorAggregate, buckets []StakeBucket) []BucketTally {
	if len(buckets) == 0 {
		buckets = DefaultStakeBuckets
	}
	tallies := make([]BucketTally, len(buckets))
	for i, b := range buckets {
		tallies[i].Label = b.Label
	}

	for _, agg := range aggregates {
		if agg.ActiveStake <= 0 {
			continue
		}
		for i, b := range buckets {
			if agg.ActiveStake >= b.Min && (b.Max <= 0 || agg.ActiveStake < b.Max) {
				tallies[i].Count++
				tallies[i].Stake += agg.ActiveStake
				break
			}
		}
	}
	return tallies
}
