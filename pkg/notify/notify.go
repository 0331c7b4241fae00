package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"

	"github.com/malbeclabs/stakewatch/pkg/analysis"
)

// SlackAPI is the slice of the Slack client the notifier uses. Satisfied by
// *slack.Client.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type Config struct {
	Logger  *slog.Logger
	Client  SlackAPI
	Channel string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("slack client is required")
	}
	if cfg.Channel == "" {
		return errors.New("channel is required")
	}
	return nil
}

// Notifier posts a one-message summary of each finished run to a Slack
// channel.
type Notifier struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Notifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Notifier{log: cfg.Logger, cfg: cfg}, nil
}

func (n *Notifier) NotifyReport(ctx context.Context, report *analysis.Report) error {
	if report == nil {
		return errors.New("report is nil")
	}

	text := FormatSummary(report)
	_, _, err := n.cfg.Client.PostMessageContext(ctx, n.cfg.Channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}

	n.log.Info("notify: posted run summary", "channel", n.cfg.Channel, "epoch", report.Epoch.Epoch)
	return nil
}

// FormatSummary renders a run summary in Slack mrkdwn.
func FormatSummary(report *analysis.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, ":bar_chart: *Stake report for epoch %d* (%.1f%% complete)\n",
		report.Epoch.Epoch, report.Epoch.CompletedPct)

	for _, authority := range report.Authorities {
		fmt.Fprintf(&b, "• *%s*: %s SOL across %d validators, nakamoto %d, HHI %.4f\n",
			authority.Authority,
			formatSOL(authority.Stats.TotalActive),
			authority.ActiveValidators,
			authority.Concentration.NakamotoCoefficient,
			authority.Concentration.HHI,
		)
	}

	if combined := report.Combined; combined != nil {
		fmt.Fprintf(&b, "• *combined*: %s SOL across %d validators, nakamoto %d, HHI %.4f\n",
			formatSOL(combined.TotalActiveStake),
			combined.ActiveValidators,
			combined.Concentration.NakamotoCoefficient,
			combined.Concentration.HHI,
		)
		if len(combined.HighCommission) > 0 {
			fmt.Fprintf(&b, ":warning: %d validators above the commission ceiling\n", len(combined.HighCommission))
		}
		if len(combined.HighMEVTips) > 0 {
			fmt.Fprintf(&b, ":warning: %d validators above the MEV tip ceiling\n", len(combined.HighMEVTips))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatSOL(v float64) string {
	switch {
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fk", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
