package analysis

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStakewatch_Analysis_Aggregate(t *testing.T) {
	t.Parallel()

	t.Run("splits active and deactivating stake per voter", func(t *testing.T) {
		t.Parallel()

		aggs := AggregateDelegations([]NormalizedDelegation{
			{Voter: "A", Stake: 100},
			{Voter: "A", Stake: 50, Deactivating: true},
			{Voter: "A", Stake: 25},
			{Voter: "B", Stake: 500},
		})
		require.Len(t, aggs, 2)

		// Sorted by active stake descending.
		require.Equal(t, "B", aggs[0].Voter)
		require.Equal(t, 500.0, aggs[0].ActiveStake)
		require.Equal(t, 1, aggs[0].StakeAccountCount)

		require.Equal(t, "A", aggs[1].Voter)
		require.Equal(t, 125.0, aggs[1].ActiveStake)
		require.Equal(t, 50.0, aggs[1].DeactivatingStake)
		require.Equal(t, 3, aggs[1].StakeAccountCount)
	})

	t.Run("fold is order independent", func(t *testing.T) {
		t.Parallel()

		delegations := make([]NormalizedDelegation, 0, 200)
		voters := []string{"A", "B", "C", "D", "E"}
		for i := 0; i < 200; i++ {
			delegations = append(delegations, NormalizedDelegation{
				Voter:        voters[i%len(voters)],
				Stake:        float64(i + 1),
				Deactivating: i%7 == 0,
			})
		}

		want := aggregatesByVoter(AggregateDelegations(delegations))

		rng := rand.New(rand.NewPCG(42, 0))
		for trial := 0; trial < 5; trial++ {
			shuffled := make([]NormalizedDelegation, len(delegations))
			copy(shuffled, delegations)
			rng.Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			got := aggregatesByVoter(AggregateDelegations(shuffled))
			require.Equal(t, len(want), len(got))
			for voter, w := range want {
				g := got[voter]
				require.NotNil(t, g)
				require.InDelta(t, w.ActiveStake, g.ActiveStake, 1e-9)
				require.InDelta(t, w.DeactivatingStake, g.DeactivatingStake, 1e-9)
				require.Equal(t, w.StakeAccountCount, g.StakeAccountCount)
			}
		}
	})

	t.Run("metadata is attached on first sighting", func(t *testing.T) {
		t.Parallel()

		aggs := AggregateDelegations([]NormalizedDelegation{
			{Voter: "A", Stake: 10, Info: ValidatorInfo{Name: "Node A", Country: "Finland"}},
			{Voter: "A", Stake: 20, Info: ValidatorInfo{Name: "Node A", Country: "Finland"}},
		})
		require.Len(t, aggs, 1)
		require.Equal(t, "Node A", aggs[0].Info.Name)
		require.Equal(t, "Finland", aggs[0].Info.Country)
	})
}

func TestStakewatch_Analysis_ActiveDistribution(t *testing.T) {
	t.Parallel()

	aggs := []*ValidatorAggregate{
		{Voter: "A", ActiveStake: 100},
		{Voter: "B", ActiveStake: 0, DeactivatingStake: 50},
		{Voter: "C", ActiveStake: 300},
	}

	dist := ActiveDistribution(aggs)
	require.Equal(t, []float64{300, 100}, dist)
}

func aggregatesByVoter(aggs []*ValidatorAggregate) map[string]*ValidatorAggregate {
	byVoter := make(map[string]*ValidatorAggregate, len(aggs))
	for _, agg := range aggs {
		byVoter[agg.Voter] = agg
	}
	return byVoter
}
