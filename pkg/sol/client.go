// Package sol fetches the chain-side inputs of an analysis run: delegated
// stake accounts for a staker authority, vote accounts, block production,
// epoch info, and gossip nodes.
package sol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/malbeclabs/stakewatch/pkg/analysis"
)

// stakerAuthorityOffset is the byte offset of meta.authorized.staker within
// a stake account: 4 bytes enum discriminant + 8 bytes rent exempt reserve.
const stakerAuthorityOffset = 12

// RPC is the subset of the Solana JSON-RPC surface the client uses.
// *solanarpc.Client satisfies it.
type RPC interface {
	GetProgramAccountsWithOpts(ctx context.Context, publicKey solana.PublicKey, opts *solanarpc.GetProgramAccountsOpts) (solanarpc.GetProgramAccountsResult, error)
	GetVoteAccounts(ctx context.Context, opts *solanarpc.GetVoteAccountsOpts) (*solanarpc.GetVoteAccountsResult, error)
	GetEpochInfo(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetEpochInfoResult, error)
	GetClusterNodes(ctx context.Context) ([]*solanarpc.GetClusterNodesResult, error)
}

type ClientConfig struct {
	Logger *slog.Logger
	RPC    RPC
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc is required")
	}
	return nil
}

// Client wraps the RPC surface and converts responses into the engine's
// input contracts.
type Client struct {
	log *slog.Logger
	rpc RPC
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{log: cfg.Logger, rpc: cfg.RPC}, nil
}

// parsedStakeAccount mirrors the jsonParsed encoding of a stake-program
// account. Numeric fields are decimal strings on the wire; they are passed
// through untouched so the engine owns all numeric parsing.
type parsedStakeAccount struct {
	Parsed struct {
		Info struct {
			Stake *struct {
				Delegation *struct {
					Voter             string `json:"voter"`
					Stake             string `json:"stake"`
					ActivationEpoch   string `json:"activationEpoch"`
					DeactivationEpoch string `json:"deactivationEpoch"`
				} `json:"delegation"`
			} `json:"stake"`
		} `json:"info"`
		Type string `json:"type"`
	} `json:"parsed"`
}

// GetStakeAccountsByStaker fetches every stake account whose staker
// authority matches the given public key, via a memcmp-filtered
// getProgramAccounts against the stake program.
func (c *Client) GetStakeAccountsByStaker(ctx context.Context, authority solana.PublicKey) ([]analysis.RawStakeAccount, error) {
	c.log.Debug("sol: fetching stake accounts", "authority", authority.String())

	out, err := c.rpc.GetProgramAccountsWithOpts(ctx, solana.StakeProgramID, &solanarpc.GetProgramAccountsOpts{
		Encoding:   solana.EncodingJSONParsed,
		Commitment: solanarpc.CommitmentConfirmed,
		Filters: []solanarpc.RPCFilter{
			{
				Memcmp: &solanarpc.RPCFilterMemcmp{
					Offset: stakerAuthorityOffset,
					Bytes:  solana.Base58(authority.Bytes()),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get stake accounts: %w", err)
	}

	accounts := make([]analysis.RawStakeAccount, 0, len(out))
	for _, keyed := range out {
		raw := analysis.RawStakeAccount{Pubkey: keyed.Pubkey.String()}

		if keyed.Account != nil && keyed.Account.Data != nil {
			var parsed parsedStakeAccount
			if err := json.Unmarshal(keyed.Account.Data.GetRawJSON(), &parsed); err != nil {
				return nil, fmt.Errorf("failed to decode stake account %s: %w", keyed.Pubkey, err)
			}
			if parsed.Parsed.Info.Stake != nil && parsed.Parsed.Info.Stake.Delegation != nil {
				d := parsed.Parsed.Info.Stake.Delegation
				raw.Delegation = &analysis.RawDelegation{
					Voter:             d.Voter,
					StakeLamports:     d.Stake,
					ActivationEpoch:   d.ActivationEpoch,
					DeactivationEpoch: d.DeactivationEpoch,
				}
			}
		}

		accounts = append(accounts, raw)
	}

	c.log.Debug("sol: fetched stake accounts", "authority", authority.String(), "count", len(accounts))
	return accounts, nil
}

// GetVotePerformance fetches the vote-account set and returns performance
// data keyed by vote-account pubkey, which matches the delegation voter
// field. Delinquent validators are included with the flag set.
func (c *Client) GetVotePerformance(ctx context.Context) (map[string]analysis.VotePerformance, error) {
	c.log.Debug("sol: fetching vote accounts")

	out, err := c.rpc.GetVoteAccounts(ctx, &solanarpc.GetVoteAccountsOpts{
		Commitment: solanarpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get vote accounts: %w", err)
	}
	if out == nil {
		return nil, errors.New("vote accounts response is nil")
	}

	votes := make(map[string]analysis.VotePerformance, len(out.Current)+len(out.Delinquent))
	add := func(accounts []solanarpc.VoteAccountsResult, delinquent bool) {
		for _, acct := range accounts {
			commission := float64(acct.Commission)
			votes[acct.VotePubkey.String()] = analysis.VotePerformance{
				CommissionPct:  &commission,
				ActivatedStake: acct.ActivatedStake,
				Delinquent:     delinquent,
			}
		}
	}
	add(out.Current, false)
	add(out.Delinquent, true)

	return votes, nil
}

// NodeIdentityByVote returns the vote-pubkey to node-identity mapping from
// the vote-account set, used to join gossip metadata onto delegations.
func (c *Client) NodeIdentityByVote(ctx context.Context) (map[string]string, error) {
	out, err := c.rpc.GetVoteAccounts(ctx, &solanarpc.GetVoteAccountsOpts{
		Commitment: solanarpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get vote accounts: %w", err)
	}
	if out == nil {
		return nil, errors.New("vote accounts response is nil")
	}

	identities := make(map[string]string, len(out.Current)+len(out.Delinquent))
	for _, acct := range out.Current {
		identities[acct.VotePubkey.String()] = acct.NodePubkey.String()
	}
	for _, acct := range out.Delinquent {
		identities[acct.VotePubkey.String()] = acct.NodePubkey.String()
	}
	return identities, nil
}

// GossipNode is the slice of cluster-node gossip data used for metadata
// enrichment, keyed by node identity.
type GossipNode struct {
	Identity   string
	GossipAddr string
	Version    string
}

// GetGossipNodes returns gossip nodes by node identity.
func (c *Client) GetGossipNodes(ctx context.Context) (map[string]GossipNode, error) {
	c.log.Debug("sol: fetching cluster nodes")

	out, err := c.rpc.GetClusterNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster nodes: %w", err)
	}

	nodes := make(map[string]GossipNode, len(out))
	for _, node := range out {
		if node == nil || node.Pubkey.IsZero() {
			continue
		}
		gn := GossipNode{Identity: node.Pubkey.String()}
		if node.Gossip != nil {
			gn.GossipAddr = *node.Gossip
		}
		if node.Version != nil {
			gn.Version = *node.Version
		}
		nodes[gn.Identity] = gn
	}
	return nodes, nil
}

// GetEpochInfo fetches current epoch metadata for the report header.
func (c *Client) GetEpochInfo(ctx context.Context) (analysis.EpochInfo, error) {
	out, err := c.rpc.GetEpochInfo(ctx, solanarpc.CommitmentConfirmed)
	if err != nil {
		return analysis.EpochInfo{}, fmt.Errorf("failed to get epoch info: %w", err)
	}
	if out == nil {
		return analysis.EpochInfo{}, errors.New("epoch info response is nil")
	}

	info := analysis.EpochInfo{
		Epoch:        out.Epoch,
		Slot:         out.AbsoluteSlot,
		SlotsInEpoch: out.SlotsInEpoch,
	}
	if out.SlotsInEpoch > 0 {
		info.CompletedPct = float64(out.SlotIndex) / float64(out.SlotsInEpoch) * 100
	}
	return info, nil
}
