package analysis

import "sort"

// AggregateDelegations folds normalized delegation records into one
// aggregate per distinct voter identity. The fold is commutative and
// associative over stake addition, so input order never changes the result
// beyond tie ordering among equal stakes, which is kept stable on first
// sighting.
//
// Each record adds its stake to either the active or the deactivating
// counter, never both. The returned slice is sorted by active stake
// descending.
func AggregateDelegations(delegations []NormalizedDelegation) []*ValidatorAggregate {
	byVoter := make(map[string]*ValidatorAggregate, len(delegations))
	order := make([]*ValidatorAggregate, 0, len(delegations))

	for _, del := range delegations {
		agg, ok := byVoter[del.Voter]
		if !ok {
			agg = &ValidatorAggregate{
				Voter: del.Voter,
				Info:  del.Info,
			}
			byVoter[del.Voter] = agg
			order = append(order, agg)
		}
		agg.StakeAccountCount++
		if del.Deactivating {
			agg.DeactivatingStake += del.Stake
		} else {
			agg.ActiveStake += del.Stake
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].ActiveStake > order[j].ActiveStake
	})
	return order
}

// ActiveDistribution extracts the descending active-stake distribution from
// a set of aggregates. Zero-stake validators are excluded from every
// concentration metric but remain in raw validator counts.
func ActiveDistribution(aggregates []*ValidatorAggregate) []float64 {
	dist := make([]float64, 0, len(aggregates))
	for _, agg := range aggregates {
		if agg.ActiveStake > 0 {
			dist = append(dist, agg.ActiveStake)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(dist)))
	return dist
}
