package collector

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/stakewatch/pkg/analysis"
	"github.com/malbeclabs/stakewatch/pkg/geoip"
	"github.com/malbeclabs/stakewatch/pkg/sol"
	"github.com/malbeclabs/stakewatch/pkg/testutil"
)

const sentinel = "18446744073709551615"

type mockChain struct {
	stakeAccountsFunc func(ctx context.Context, authority solana.PublicKey) ([]analysis.RawStakeAccount, error)
	votesFunc         func(ctx context.Context) (map[string]analysis.VotePerformance, error)
	identitiesFunc    func(ctx context.Context) (map[string]string, error)
	gossipFunc        func(ctx context.Context) (map[string]sol.GossipNode, error)
	epochFunc         func(ctx context.Context) (analysis.EpochInfo, error)
}

var _ ChainSource = (*mockChain)(nil)

func (m *mockChain) GetStakeAccountsByStaker(ctx context.Context, authority solana.PublicKey) ([]analysis.RawStakeAccount, error) {
	return m.stakeAccountsFunc(ctx, authority)
}

func (m *mockChain) GetVotePerformance(ctx context.Context) (map[string]analysis.VotePerformance, error) {
	if m.votesFunc != nil {
		return m.votesFunc(ctx)
	}
	return map[string]analysis.VotePerformance{}, nil
}

func (m *mockChain) NodeIdentityByVote(ctx context.Context) (map[string]string, error) {
	if m.identitiesFunc != nil {
		return m.identitiesFunc(ctx)
	}
	return map[string]string{}, nil
}

func (m *mockChain) GetGossipNodes(ctx context.Context) (map[string]sol.GossipNode, error) {
	if m.gossipFunc != nil {
		return m.gossipFunc(ctx)
	}
	return map[string]sol.GossipNode{}, nil
}

func (m *mockChain) GetEpochInfo(ctx context.Context) (analysis.EpochInfo, error) {
	if m.epochFunc != nil {
		return m.epochFunc(ctx)
	}
	return analysis.EpochInfo{Epoch: 812}, nil
}

type mockDirectory struct {
	validatorsFunc func(ctx context.Context) (map[string]analysis.ValidatorMetadata, error)
}

var _ MetadataSource = (*mockDirectory)(nil)

func (m *mockDirectory) GetValidators(ctx context.Context) (map[string]analysis.ValidatorMetadata, error) {
	return m.validatorsFunc(ctx)
}

func delegated(pubkey, voter, lamports string) analysis.RawStakeAccount {
	return analysis.RawStakeAccount{
		Pubkey: pubkey,
		Delegation: &analysis.RawDelegation{
			Voter:             voter,
			StakeLamports:     lamports,
			ActivationEpoch:   "700",
			DeactivationEpoch: sentinel,
		},
	}
}

func testAuthority(name string, seed byte) Authority {
	var key solana.PublicKey
	key[0] = seed
	key[31] = seed
	return Authority{Name: name, Pubkey: key}
}

func TestStakewatch_Collector_Run(t *testing.T) {
	t.Parallel()

	t.Run("assembles a report from all sources", func(t *testing.T) {
		t.Parallel()

		foundation := testAuthority("foundation", 1)
		pool := testAuthority("pool", 2)

		chain := &mockChain{
			stakeAccountsFunc: func(ctx context.Context, authority solana.PublicKey) ([]analysis.RawStakeAccount, error) {
				switch authority {
				case foundation.Pubkey:
					return []analysis.RawStakeAccount{
						delegated("acct1", "voterA", "600000000000"),
						delegated("acct2", "voterB", "400000000000"),
						{Pubkey: "acct3"},
					}, nil
				case pool.Pubkey:
					return []analysis.RawStakeAccount{
						delegated("acct4", "voterA", "100000000000"),
					}, nil
				}
				return nil, errors.New("unexpected authority")
			},
			votesFunc: func(ctx context.Context) (map[string]analysis.VotePerformance, error) {
				commission := 8.0
				return map[string]analysis.VotePerformance{
					"voterA": {CommissionPct: &commission},
				}, nil
			},
		}
		directory := &mockDirectory{
			validatorsFunc: func(ctx context.Context) (map[string]analysis.ValidatorMetadata, error) {
				return map[string]analysis.ValidatorMetadata{
					"voterA": {Name: "Node A", Country: "Germany"},
				}, nil
			},
		}

		c, err := New(Config{
			Logger:      testutil.NewLogger(),
			Clock:       clockwork.NewFakeClock(),
			Chain:       chain,
			Directory:   directory,
			Authorities: []Authority{foundation, pool},
		})
		require.NoError(t, err)
		require.Nil(t, c.Latest())

		report, err := c.Run(context.Background())
		require.NoError(t, err)
		require.Same(t, report, c.Latest())
		require.NotEmpty(t, report.RunID)
		require.Equal(t, uint64(812), report.Epoch.Epoch)
		require.Len(t, report.Authorities, 2)

		var foundationSection analysis.AuthorityReport
		for _, section := range report.Authorities {
			if section.Authority == "foundation" {
				foundationSection = section
			}
		}
		require.Equal(t, 3, foundationSection.StakeAccounts)
		require.Equal(t, 1, foundationSection.EmptyAccounts)
		require.Equal(t, 2, foundationSection.Validators)
		require.InDelta(t, 1000.0, foundationSection.Stats.TotalActive, 1e-9)

		// voterA carries directory metadata and vote overrides.
		top := foundationSection.TopValidators[0]
		require.Equal(t, "voterA", top.Voter)
		require.Equal(t, "Node A", top.Info.Name)
		require.Equal(t, 8.0, *top.Info.CommissionPct)

		// Two authorities produce a combined section; voterA is deduplicated.
		require.NotNil(t, report.Combined)
		require.Equal(t, 2, report.Combined.Validators)
		require.InDelta(t, 700.0, report.Combined.TopValidators[0].ActiveStake, 1e-9)
	})

	t.Run("fails fast when any source fails", func(t *testing.T) {
		t.Parallel()

		chain := &mockChain{
			stakeAccountsFunc: func(ctx context.Context, authority solana.PublicKey) ([]analysis.RawStakeAccount, error) {
				return nil, errors.New("rpc unavailable")
			},
		}
		c, err := New(Config{
			Logger:      testutil.NewLogger(),
			Clock:       clockwork.NewFakeClock(),
			Chain:       chain,
			Authorities: []Authority{testAuthority("foundation", 1)},
		})
		require.NoError(t, err)

		_, err = c.Run(context.Background())
		require.Error(t, err)
		require.Nil(t, c.Latest())
	})

	t.Run("malformed stake data aborts the run", func(t *testing.T) {
		t.Parallel()

		chain := &mockChain{
			stakeAccountsFunc: func(ctx context.Context, authority solana.PublicKey) ([]analysis.RawStakeAccount, error) {
				return []analysis.RawStakeAccount{
					delegated("acct1", "voterA", "garbage"),
				}, nil
			},
		}
		c, err := New(Config{
			Logger:      testutil.NewLogger(),
			Clock:       clockwork.NewFakeClock(),
			Chain:       chain,
			Authorities: []Authority{testAuthority("foundation", 1)},
		})
		require.NoError(t, err)

		_, err = c.Run(context.Background())
		var dfe *analysis.DataFormatError
		require.True(t, errors.As(err, &dfe))
	})

	t.Run("geoip backfills geography missing from the directory", func(t *testing.T) {
		t.Parallel()

		foundation := testAuthority("foundation", 1)
		chain := &mockChain{
			stakeAccountsFunc: func(ctx context.Context, authority solana.PublicKey) ([]analysis.RawStakeAccount, error) {
				return []analysis.RawStakeAccount{
					delegated("acct1", "voterA", "1000000000"),
				}, nil
			},
			votesFunc: func(ctx context.Context) (map[string]analysis.VotePerformance, error) {
				return map[string]analysis.VotePerformance{"voterA": {}}, nil
			},
			identitiesFunc: func(ctx context.Context) (map[string]string, error) {
				return map[string]string{"voterA": "identityA"}, nil
			},
			gossipFunc: func(ctx context.Context) (map[string]sol.GossipNode, error) {
				return map[string]sol.GossipNode{
					"identityA": {Identity: "identityA", GossipAddr: "203.0.113.7:8001", Version: "2.1.13"},
				}, nil
			},
		}

		resolver := &staticResolver{record: &geoip.Record{
			Country: "Finland",
			City:    "Helsinki",
			ASN:     24940,
			ASNOrg:  "Hetzner Online GmbH",
		}}

		c, err := New(Config{
			Logger:      testutil.NewLogger(),
			Clock:       clockwork.NewFakeClock(),
			Chain:       chain,
			GeoIP:       resolver,
			Authorities: []Authority{foundation},
		})
		require.NoError(t, err)

		report, err := c.Run(context.Background())
		require.NoError(t, err)

		info := report.Authorities[0].TopValidators[0].Info
		require.Equal(t, "Finland", info.Country)
		require.Equal(t, "Helsinki", info.City)
		require.Equal(t, "Hetzner Online GmbH", info.ASNOrg)
		require.Equal(t, "2.1.13", info.SoftwareVersion)
	})

	t.Run("rejects duplicate authority names", func(t *testing.T) {
		t.Parallel()

		_, err := New(Config{
			Logger: testutil.NewLogger(),
			Chain:  &mockChain{},
			Authorities: []Authority{
				testAuthority("foundation", 1),
				testAuthority("foundation", 2),
			},
		})
		require.Error(t, err)
	})
}

type staticResolver struct {
	record *geoip.Record
}

func (r *staticResolver) Resolve(ip net.IP) *geoip.Record {
	record := *r.record
	record.IP = ip
	return &record
}
