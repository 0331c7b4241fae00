// Package analysis implements the stake decentralization engine: a pure,
// deterministic transformation from raw stake-delegation records and optional
// validator metadata into a structured concentration report. It performs no
// I/O; collaborators in pkg/sol and pkg/valmeta supply its inputs.
package analysis

import "time"

// LamportsPerSol is the fixed scale factor between lamports and SOL.
// Conversion happens exactly once, at normalization; everything downstream
// works in SOL.
const LamportsPerSol = 1_000_000_000

// DeactivationSentinel is the u64 max value Solana uses to mark a delegation
// that is not deactivating. It must be compared as an exact 64-bit value;
// going through a float64 silently corrupts it.
const DeactivationSentinel = ^uint64(0)

// RawStakeAccount is one stake-program account as returned by the
// jsonParsed account index. Numeric fields arrive as decimal strings.
type RawStakeAccount struct {
	Pubkey     string         `json:"pubkey"`
	Delegation *RawDelegation `json:"delegation"`
}

// RawDelegation is the delegation sub-object of a stake account. Accounts
// without one are counted as empty and excluded from aggregation.
type RawDelegation struct {
	Voter             string `json:"voter"`
	StakeLamports     string `json:"stake"`
	ActivationEpoch   string `json:"activationEpoch"`
	DeactivationEpoch string `json:"deactivationEpoch"`
}

// ValidatorMetadata is directory-sourced information about a validator,
// keyed by voter identity. Every field is optional; absence degrades to
// nil/"Unknown"/false during normalization, never to an error.
type ValidatorMetadata struct {
	Name                 string   `json:"name,omitempty"`
	CommissionPct        *float64 `json:"commissionPct,omitempty"`
	SoftwareVersion      string   `json:"softwareVersion,omitempty"`
	Country              string   `json:"country,omitempty"`
	City                 string   `json:"city,omitempty"`
	ASN                  *int64   `json:"asn,omitempty"`
	ASNOrg               string   `json:"asnOrg,omitempty"`
	IsJitoEnabled        bool     `json:"isJitoEnabled,omitempty"`
	JitoCommissionBps    *int64   `json:"jitoCommissionBps,omitempty"`
	Delinquent           bool     `json:"delinquent,omitempty"`
	TotalNetworkLamports *uint64  `json:"totalNetworkLamports,omitempty"`
}

// VotePerformance is per-validator data from the vote-account RPC surface.
// Its commission takes priority over the directory-sourced one.
type VotePerformance struct {
	CommissionPct  *float64 `json:"commissionPct,omitempty"`
	ActivatedStake uint64   `json:"activatedStakeLamports,omitempty"`
	Delinquent     bool     `json:"delinquent,omitempty"`
	LeaderSlots    uint64   `json:"leaderSlots,omitempty"`
	BlocksProduced uint64   `json:"blocksProduced,omitempty"`
}

// ValidatorInfo is the resolved, merged view of a validator's metadata after
// normalization. String fields are empty (not "Unknown") when absent; the
// breakdown builder substitutes "Unknown" at grouping time.
type ValidatorInfo struct {
	Name              string   `json:"name,omitempty"`
	CommissionPct     *float64 `json:"commissionPct,omitempty"`
	SoftwareVersion   string   `json:"softwareVersion,omitempty"`
	Country           string   `json:"country,omitempty"`
	City              string   `json:"city,omitempty"`
	ASN               *int64   `json:"asn,omitempty"`
	ASNOrg            string   `json:"asnOrg,omitempty"`
	IsJitoEnabled     bool     `json:"isJitoEnabled"`
	JitoCommissionBps *int64   `json:"jitoCommissionBps,omitempty"`
	Delinquent        bool     `json:"delinquent"`
	Superminority     bool     `json:"superminority"`
}

// NormalizedDelegation is one delegation record after unit conversion,
// sentinel resolution, and metadata merge.
type NormalizedDelegation struct {
	Account      string
	Voter        string
	Stake        float64 // SOL
	Deactivating bool
	Info         ValidatorInfo
}

// ValidatorAggregate is the per-voter-identity fold of all delegation
// records. Created on first sighting, mutated additively during aggregation,
// and treated as immutable once AggregateDelegations returns.
type ValidatorAggregate struct {
	Voter             string        `json:"voter"`
	ActiveStake       float64       `json:"activeStake"`
	DeactivatingStake float64       `json:"deactivatingStake"`
	StakeAccountCount int           `json:"stakeAccountCount"`
	Info              ValidatorInfo `json:"info"`
}

// ConcentrationMetrics are the scalar concentration indices over a stake
// distribution. All percentage fields are ratios multiplied by 100 with no
// internal rounding; display precision is the caller's concern.
type ConcentrationMetrics struct {
	NakamotoCoefficient int     `json:"nakamotoCoefficient"`
	SuperminorityCount  int     `json:"superminorityCount"`
	HHI                 float64 `json:"hhi"`
	Gini                float64 `json:"gini"`
	TopValidatorPct     float64 `json:"topValidatorPct"`
	Top10Pct            float64 `json:"top10Pct"`
	Top20Pct            float64 `json:"top20Pct"`
	Top50Pct            float64 `json:"top50Pct"`
}

// BreakdownEntry is one category of a dimensional breakdown.
type BreakdownEntry struct {
	Key   string  `json:"key"`
	Count int     `json:"count"`
	Stake float64 `json:"stake"`
	Pct   float64 `json:"pct"`
}

// StakeBucket is a half-open stake range [Min, Max). A non-positive Max
// means unbounded above.
type StakeBucket struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// BucketTally is the validator count and stake falling into one bucket.
type BucketTally struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Stake float64 `json:"stake"`
}

// StakeStats are summary statistics over the active stakes of one
// validator set.
type StakeStats struct {
	TotalActive            float64 `json:"totalActive"`
	TotalDeactivating      float64 `json:"totalDeactivating"`
	Min                    float64 `json:"min"`
	Max                    float64 `json:"max"`
	Mean                   float64 `json:"mean"`
	Median                 float64 `json:"median"`
	EstimatedAnnualRewards float64 `json:"estimatedAnnualRewards"`
}

// Breakdowns groups the dimensional breakdowns of one validator set.
type Breakdowns struct {
	Country    []BreakdownEntry `json:"country"`
	Continent  []BreakdownEntry `json:"continent"`
	City       []BreakdownEntry `json:"city"`
	ASNOrg     []BreakdownEntry `json:"asnOrg"`
	Version    []BreakdownEntry `json:"version"`
	Commission []BreakdownEntry `json:"commission"`
}

// AuthorityInput is what the collector hands the assembler per staking
// authority: the aggregated validator set plus raw account counts.
type AuthorityInput struct {
	Authority     string
	StakeAccounts int
	EmptyAccounts int
	Aggregates    []*ValidatorAggregate
}

// AuthorityReport is the per-authority section of a report.
type AuthorityReport struct {
	Authority        string                `json:"authority"`
	StakeAccounts    int                   `json:"stakeAccounts"`
	EmptyAccounts    int                   `json:"emptyAccounts"`
	Validators       int                   `json:"validators"`
	ActiveValidators int                   `json:"activeValidators"`
	Stats            StakeStats            `json:"stats"`
	Concentration    ConcentrationMetrics  `json:"concentration"`
	Breakdowns       Breakdowns            `json:"breakdowns"`
	Buckets          []BucketTally         `json:"buckets"`
	TopValidators    []*ValidatorAggregate `json:"topValidators,omitempty"`
}

// EpochInfo is chain epoch metadata passed through from the collaborator
// that fetched it.
type EpochInfo struct {
	Epoch        uint64  `json:"epoch"`
	Slot         uint64  `json:"slot"`
	SlotsInEpoch uint64  `json:"slotsInEpoch"`
	CompletedPct float64 `json:"completedPct"`
}

// Report is the assembled output of one analysis run. Immutable once
// assembled.
type Report struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	RunID       string            `json:"runId,omitempty"`
	Epoch       EpochInfo         `json:"epoch"`
	Authorities []AuthorityReport `json:"authorities"`
	Combined    *CombinedReport   `json:"combined,omitempty"`
}
