// Package valmeta fetches per-validator metadata (identity, geography,
// infrastructure, commission, Jito participation) from a validator
// directory service. Results may be empty or partial; the engine treats
// missing metadata as the normal case.
package valmeta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/stakewatch/pkg/analysis"
	"github.com/malbeclabs/stakewatch/pkg/retry"
)

type ClientConfig struct {
	Logger  *slog.Logger
	BaseURL string
	Token   string
	Network string
	// RequestsPerSecond throttles directory calls; directories rate limit
	// aggressively. Zero means no throttle.
	RequestsPerSecond float64
	Retry             retry.Config
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BaseURL == "" {
		return errors.New("base url is required")
	}
	return nil
}

// Client is an HTTP client for the validator directory API.
type Client struct {
	log        *slog.Logger
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Network == "" {
		cfg.Network = "mainnet"
	}
	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.DefaultConfig()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	// Custom transport with dial timeout for fast failure on connection issues
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
	}

	return &Client{
		log: cfg.Logger,
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   2 * time.Minute,
		},
		limiter: limiter,
	}, nil
}

// directoryValidator is one entry of the directory listing.
type directoryValidator struct {
	Account         string   `json:"account"`
	VoteAccount     string   `json:"vote_account"`
	Name            string   `json:"name"`
	Commission      *float64 `json:"commission"`
	SoftwareVersion string   `json:"software_version"`
	Country         string   `json:"country"`
	City            string   `json:"city"`
	ASN             *int64   `json:"autonomous_system_number"`
	ASNOrg          string   `json:"autonomous_system_organization"`
	Jito            bool     `json:"jito"`
	JitoCommission  *int64   `json:"jito_commission"`
	Delinquent      *bool    `json:"delinquent"`
	TotalStake      *uint64  `json:"total_network_stake"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("directory returned status %d: %s", e.code, e.body)
}

func (e *statusError) StatusCode() int { return e.code }

// GetValidators fetches the directory listing and returns metadata keyed by
// vote-account pubkey, falling back to identity when the directory omits
// the vote account. Entries with keys that are not valid base58 pubkeys are
// dropped rather than poisoning the lookup.
func (c *Client) GetValidators(ctx context.Context) (map[string]analysis.ValidatorMetadata, error) {
	url := fmt.Sprintf("%s/api/v1/validators/%s.json", strings.TrimSuffix(c.cfg.BaseURL, "/"), c.cfg.Network)

	var listing []directoryValidator
	err := retry.Do(ctx, c.cfg.Retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.getJSON(ctx, url, &listing)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch validator directory: %w", err)
	}

	metadata := make(map[string]analysis.ValidatorMetadata, len(listing))
	skipped := 0
	for _, v := range listing {
		key := v.VoteAccount
		if key == "" {
			key = v.Account
		}
		if !isValidPubkey(key) {
			skipped++
			continue
		}

		meta := analysis.ValidatorMetadata{
			Name:                 v.Name,
			CommissionPct:        v.Commission,
			SoftwareVersion:      v.SoftwareVersion,
			Country:              v.Country,
			City:                 v.City,
			ASN:                  v.ASN,
			ASNOrg:               v.ASNOrg,
			IsJitoEnabled:        v.Jito,
			JitoCommissionBps:    v.JitoCommission,
			TotalNetworkLamports: v.TotalStake,
		}
		if v.Delinquent != nil {
			meta.Delinquent = *v.Delinquent
		}
		metadata[key] = meta
	}

	if skipped > 0 {
		c.log.Warn("valmeta: skipped directory entries with invalid pubkeys", "count", skipped)
	}
	c.log.Debug("valmeta: fetched validator directory", "count", len(metadata))
	return metadata, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Token", c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func isValidPubkey(key string) bool {
	decoded, err := base58.Decode(key)
	return err == nil && len(decoded) == 32
}
