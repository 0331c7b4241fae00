// Package collector orchestrates one analysis run: it fetches every input
// concurrently, feeds the engine, and returns the assembled report. A run
// either completes with a full input set or fails; no partial report is
// ever produced.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/malbeclabs/stakewatch/pkg/analysis"
	"github.com/malbeclabs/stakewatch/pkg/geoip"
	"github.com/malbeclabs/stakewatch/pkg/metrics"
	"github.com/malbeclabs/stakewatch/pkg/sol"
)

// ChainSource is the chain-side collaborator, implemented by *sol.Client.
type ChainSource interface {
	GetStakeAccountsByStaker(ctx context.Context, authority solana.PublicKey) ([]analysis.RawStakeAccount, error)
	GetVotePerformance(ctx context.Context) (map[string]analysis.VotePerformance, error)
	NodeIdentityByVote(ctx context.Context) (map[string]string, error)
	GetGossipNodes(ctx context.Context) (map[string]sol.GossipNode, error)
	GetEpochInfo(ctx context.Context) (analysis.EpochInfo, error)
}

// MetadataSource is the validator-directory collaborator, implemented by
// *valmeta.Client.
type MetadataSource interface {
	GetValidators(ctx context.Context) (map[string]analysis.ValidatorMetadata, error)
}

// Authority is one staking authority whose delegations are analyzed.
type Authority struct {
	Name   string
	Pubkey solana.PublicKey
}

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Chain  ChainSource
	// Directory is optional; without it every validator degrades to
	// Unknown metadata.
	Directory MetadataSource
	// GeoIP is optional; when set, gossip addresses backfill geography the
	// directory is missing.
	GeoIP       geoip.Resolver
	Authorities []Authority
	Assembler   analysis.AssemblerConfig
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain source is required")
	}
	if len(cfg.Authorities) == 0 {
		return errors.New("at least one authority is required")
	}
	seen := make(map[string]bool, len(cfg.Authorities))
	for _, a := range cfg.Authorities {
		if a.Name == "" {
			return errors.New("authority name is required")
		}
		if a.Pubkey.IsZero() {
			return fmt.Errorf("authority %s: pubkey is required", a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate authority name %s", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

type Collector struct {
	log *slog.Logger
	cfg Config

	mu     sync.RWMutex
	latest *analysis.Report
}

func New(cfg Config) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Collector{log: cfg.Logger, cfg: cfg}, nil
}

// Latest returns the most recent successfully assembled report, or nil
// before the first successful run.
func (c *Collector) Latest() *analysis.Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// Run executes one full analysis pass.
func (c *Collector) Run(ctx context.Context) (*analysis.Report, error) {
	runID := uuid.NewString()
	started := c.cfg.Clock.Now()
	c.log.Info("collector: starting run", "run_id", runID, "authorities", len(c.cfg.Authorities))

	report, err := c.run(ctx, runID)
	duration := c.cfg.Clock.Since(started)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.RunDuration.Observe(duration.Seconds())
	c.observe(report)

	c.mu.Lock()
	c.latest = report
	c.mu.Unlock()

	c.log.Info("collector: run complete",
		"run_id", runID,
		"epoch", report.Epoch.Epoch,
		"duration", duration.Round(time.Millisecond))
	return report, nil
}

func (c *Collector) run(ctx context.Context, runID string) (*analysis.Report, error) {
	var (
		epoch      analysis.EpochInfo
		votes      map[string]analysis.VotePerformance
		metadata   map[string]analysis.ValidatorMetadata
		identities map[string]string
		gossip     map[string]sol.GossipNode
		accounts   = make([][]analysis.RawStakeAccount, len(c.cfg.Authorities))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		epoch, err = c.cfg.Chain.GetEpochInfo(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		votes, err = c.cfg.Chain.GetVotePerformance(gctx)
		return err
	})
	if c.cfg.Directory != nil {
		g.Go(func() error {
			var err error
			metadata, err = c.cfg.Directory.GetValidators(gctx)
			return err
		})
	}
	g.Go(func() error {
		var err error
		identities, err = c.cfg.Chain.NodeIdentityByVote(gctx)
		if err != nil {
			return err
		}
		gossip, err = c.cfg.Chain.GetGossipNodes(gctx)
		return err
	})
	for i, authority := range c.cfg.Authorities {
		g.Go(func() error {
			var err error
			accounts[i], err = c.cfg.Chain.GetStakeAccountsByStaker(gctx, authority.Pubkey)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch inputs: %w", err)
	}

	metadata = c.enrich(metadata, votes, identities, gossip)

	normalizer := &analysis.Normalizer{Metadata: metadata, Votes: votes}
	inputs := make([]analysis.AuthorityInput, 0, len(c.cfg.Authorities))
	for i, authority := range c.cfg.Authorities {
		res, err := normalizer.Normalize(accounts[i])
		if err != nil {
			return nil, fmt.Errorf("failed to normalize %s delegations: %w", authority.Name, err)
		}
		inputs = append(inputs, analysis.AuthorityInput{
			Authority:     authority.Name,
			StakeAccounts: len(accounts[i]),
			EmptyAccounts: res.EmptyAccounts,
			Aggregates:    analysis.AggregateDelegations(res.Delegations),
		})
	}

	return analysis.AssembleReport(c.cfg.Clock.Now().UTC(), runID, epoch, inputs, c.cfg.Assembler), nil
}

// enrich backfills directory metadata from gossip: geography through the
// GeoIP resolver and software version from cluster nodes, keyed back to
// vote pubkeys through the vote-to-identity mapping. Directory data always
// wins over derived data.
func (c *Collector) enrich(
	metadata map[string]analysis.ValidatorMetadata,
	votes map[string]analysis.VotePerformance,
	identities map[string]string,
	gossip map[string]sol.GossipNode,
) map[string]analysis.ValidatorMetadata {
	if metadata == nil {
		metadata = make(map[string]analysis.ValidatorMetadata)
	}
	if len(identities) == 0 || len(gossip) == 0 {
		return metadata
	}

	for vote := range votes {
		identity, ok := identities[vote]
		if !ok {
			continue
		}
		node, ok := gossip[identity]
		if !ok {
			continue
		}

		meta := metadata[vote]
		if meta.SoftwareVersion == "" {
			meta.SoftwareVersion = node.Version
		}
		if meta.Country == "" && c.cfg.GeoIP != nil {
			if record := geoip.MaybeResolveAddr(c.cfg.GeoIP, node.GossipAddr); record != nil {
				meta.Country = record.Country
				if meta.City == "" {
					meta.City = record.City
				}
				if meta.ASNOrg == "" {
					meta.ASNOrg = record.ASNOrg
					if record.ASN != 0 {
						asn := record.ASN
						meta.ASN = &asn
					}
				}
			}
		}
		metadata[vote] = meta
	}
	return metadata
}

func (c *Collector) observe(report *analysis.Report) {
	for _, section := range report.Authorities {
		metrics.ActiveValidators.WithLabelValues(section.Authority).Set(float64(section.ActiveValidators))
		metrics.TotalActiveStake.WithLabelValues(section.Authority).Set(section.Stats.TotalActive)
		metrics.NakamotoCoefficient.WithLabelValues(section.Authority).Set(float64(section.Concentration.NakamotoCoefficient))
		metrics.HHI.WithLabelValues(section.Authority).Set(section.Concentration.HHI)
	}
	if report.Combined != nil {
		metrics.ActiveValidators.WithLabelValues("combined").Set(float64(report.Combined.ActiveValidators))
		metrics.TotalActiveStake.WithLabelValues("combined").Set(report.Combined.TotalActiveStake)
		metrics.NakamotoCoefficient.WithLabelValues("combined").Set(float64(report.Combined.Concentration.NakamotoCoefficient))
		metrics.HHI.WithLabelValues("combined").Set(report.Combined.Concentration.HHI)
	}
}
