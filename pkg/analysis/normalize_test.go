package analysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const sentinel = "18446744073709551615"

func delegatedAccount(pubkey, voter, lamports, deactivationEpoch string) RawStakeAccount {
	return RawStakeAccount{
		Pubkey: pubkey,
		Delegation: &RawDelegation{
			Voter:             voter,
			StakeLamports:     lamports,
			ActivationEpoch:   "700",
			DeactivationEpoch: deactivationEpoch,
		},
	}
}

func TestStakewatch_Analysis_Normalize(t *testing.T) {
	t.Parallel()

	t.Run("converts lamports to SOL exactly once", func(t *testing.T) {
		t.Parallel()

		n := &Normalizer{}
		res, err := n.Normalize([]RawStakeAccount{
			delegatedAccount("acct1", "voterA", "500000000000", sentinel),
		})
		require.NoError(t, err)
		require.Len(t, res.Delegations, 1)
		require.Equal(t, 500.0, res.Delegations[0].Stake)
		require.False(t, res.Delegations[0].Deactivating)
	})

	t.Run("counts accounts without a delegation as empty", func(t *testing.T) {
		t.Parallel()

		n := &Normalizer{}
		res, err := n.Normalize([]RawStakeAccount{
			{Pubkey: "acct1"},
			delegatedAccount("acct2", "voterA", "1000000000", sentinel),
			{Pubkey: "acct3"},
		})
		require.NoError(t, err)
		require.Equal(t, 2, res.EmptyAccounts)
		require.Len(t, res.Delegations, 1)
	})

	t.Run("sentinel deactivation epoch means not deactivating", func(t *testing.T) {
		t.Parallel()

		n := &Normalizer{}
		res, err := n.Normalize([]RawStakeAccount{
			delegatedAccount("acct1", "voterA", "1000000000", sentinel),
			delegatedAccount("acct2", "voterA", "1000000000", "18446744073709551614"),
			delegatedAccount("acct3", "voterA", "1000000000", "812"),
		})
		require.NoError(t, err)
		require.False(t, res.Delegations[0].Deactivating)
		require.True(t, res.Delegations[1].Deactivating)
		require.True(t, res.Delegations[2].Deactivating)
	})

	t.Run("malformed stake fails with DataFormatError naming the account", func(t *testing.T) {
		t.Parallel()

		n := &Normalizer{}
		_, err := n.Normalize([]RawStakeAccount{
			delegatedAccount("badacct", "voterA", "12.5e9", sentinel),
		})
		require.Error(t, err)

		var dfe *DataFormatError
		require.True(t, errors.As(err, &dfe))
		require.Equal(t, "badacct", dfe.Account)
		require.Equal(t, "stake", dfe.Field)
	})

	t.Run("malformed deactivation epoch fails rather than substituting zero", func(t *testing.T) {
		t.Parallel()

		n := &Normalizer{}
		_, err := n.Normalize([]RawStakeAccount{
			delegatedAccount("acct1", "voterA", "1000000000", "not-a-number"),
		})
		var dfe *DataFormatError
		require.True(t, errors.As(err, &dfe))
		require.Equal(t, "deactivationEpoch", dfe.Field)
	})

	t.Run("missing metadata degrades to defaults", func(t *testing.T) {
		t.Parallel()

		n := &Normalizer{}
		res, err := n.Normalize([]RawStakeAccount{
			delegatedAccount("acct1", "voterA", "1000000000", sentinel),
		})
		require.NoError(t, err)

		info := res.Delegations[0].Info
		require.Empty(t, info.Name)
		require.Nil(t, info.CommissionPct)
		require.Empty(t, info.Country)
		require.False(t, info.IsJitoEnabled)
		require.False(t, info.Delinquent)
	})

	t.Run("vote account commission overrides directory commission", func(t *testing.T) {
		t.Parallel()

		directory := 5.0
		vote := 8.0
		n := &Normalizer{
			Metadata: map[string]ValidatorMetadata{
				"voterA": {Name: "Node A", CommissionPct: &directory, Country: "Germany"},
				"voterB": {Name: "Node B", CommissionPct: &directory},
			},
			Votes: map[string]VotePerformance{
				"voterA": {CommissionPct: &vote, Delinquent: true},
			},
		}
		res, err := n.Normalize([]RawStakeAccount{
			delegatedAccount("acct1", "voterA", "1000000000", sentinel),
			delegatedAccount("acct2", "voterB", "1000000000", sentinel),
		})
		require.NoError(t, err)

		require.Equal(t, 8.0, *res.Delegations[0].Info.CommissionPct)
		require.True(t, res.Delegations[0].Info.Delinquent)
		require.Equal(t, "Germany", res.Delegations[0].Info.Country)

		require.Equal(t, 5.0, *res.Delegations[1].Info.CommissionPct)
		require.False(t, res.Delegations[1].Info.Delinquent)
	})
}
