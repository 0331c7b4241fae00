package analysis

import "strconv"

// Normalizer merges raw delegation records with optional per-validator
// metadata and vote-account data into uniform delegation records. Both
// lookups may be nil or partial; a validator without metadata is the
// expected default path, not an error.
type Normalizer struct {
	Metadata map[string]ValidatorMetadata
	Votes    map[string]VotePerformance
}

// NormalizeResult is the output of normalizing one batch of stake accounts.
type NormalizeResult struct {
	Delegations   []NormalizedDelegation
	EmptyAccounts int
}

// Normalize converts a batch of raw stake accounts into normalized
// delegation records. Accounts without a delegation sub-object are tracked
// only as a count. Any unparsable numeric field aborts with a
// *DataFormatError identifying the offending account.
func (n *Normalizer) Normalize(accounts []RawStakeAccount) (NormalizeResult, error) {
	res := NormalizeResult{
		Delegations: make([]NormalizedDelegation, 0, len(accounts)),
	}
	for _, acct := range accounts {
		if acct.Delegation == nil {
			res.EmptyAccounts++
			continue
		}
		del, err := n.normalizeOne(acct)
		if err != nil {
			return NormalizeResult{}, err
		}
		res.Delegations = append(res.Delegations, del)
	}
	return res, nil
}

func (n *Normalizer) normalizeOne(acct RawStakeAccount) (NormalizedDelegation, error) {
	raw := acct.Delegation

	lamports, err := strconv.ParseUint(raw.StakeLamports, 10, 64)
	if err != nil {
		return NormalizedDelegation{}, &DataFormatError{Account: acct.Pubkey, Field: "stake", Value: raw.StakeLamports, Err: err}
	}

	// The sentinel is u64 max; parsing into a uint64 keeps the comparison
	// exact, which a float round-trip would not.
	deactivationEpoch, err := strconv.ParseUint(raw.DeactivationEpoch, 10, 64)
	if err != nil {
		return NormalizedDelegation{}, &DataFormatError{Account: acct.Pubkey, Field: "deactivationEpoch", Value: raw.DeactivationEpoch, Err: err}
	}

	if _, err := strconv.ParseUint(raw.ActivationEpoch, 10, 64); err != nil {
		return NormalizedDelegation{}, &DataFormatError{Account: acct.Pubkey, Field: "activationEpoch", Value: raw.ActivationEpoch, Err: err}
	}

	return NormalizedDelegation{
		Account:      acct.Pubkey,
		Voter:        raw.Voter,
		Stake:        float64(lamports) / LamportsPerSol,
		Deactivating: deactivationEpoch != DeactivationSentinel,
		Info:         n.resolveInfo(raw.Voter),
	}, nil
}

// resolveInfo merges directory metadata and vote-account data for a voter.
// Vote-account commission and delinquency take priority over the directory's
// values when both exist.
func (n *Normalizer) resolveInfo(voter string) ValidatorInfo {
	var info ValidatorInfo

	if meta, ok := n.Metadata[voter]; ok {
		info = ValidatorInfo{
			Name:              meta.Name,
			CommissionPct:     meta.CommissionPct,
			SoftwareVersion:   meta.SoftwareVersion,
			Country:           meta.Country,
			City:              meta.City,
			ASN:               meta.ASN,
			ASNOrg:            meta.ASNOrg,
			IsJitoEnabled:     meta.IsJitoEnabled,
			JitoCommissionBps: meta.JitoCommissionBps,
			Delinquent:        meta.Delinquent,
		}
	}

	if vote, ok := n.Votes[voter]; ok {
		if vote.CommissionPct != nil {
			info.CommissionPct = vote.CommissionPct
		}
		if vote.Delinquent {
			info.Delinquent = true
		}
	}

	return info
}
