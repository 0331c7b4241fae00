package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakewatch_build_info",
			Help: "Build information of stakewatch",
		},
		[]string{"version", "commit", "date"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakewatch_runs_total",
			Help: "Total number of analysis runs",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stakewatch_run_duration_seconds",
			Help:    "Duration of analysis runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~410s
		},
	)

	ActiveValidators = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakewatch_active_validators",
			Help: "Validators with positive active stake in the latest report",
		},
		[]string{"authority"},
	)

	TotalActiveStake = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakewatch_total_active_stake_sol",
			Help: "Total active stake in SOL in the latest report",
		},
		[]string{"authority"},
	)

	NakamotoCoefficient = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakewatch_nakamoto_coefficient",
			Help: "Nakamoto coefficient (1/3 threshold) of the latest report",
		},
		[]string{"authority"},
	)

	HHI = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakewatch_hhi",
			Help: "Herfindahl-Hirschman index of the latest report",
		},
		[]string{"authority"},
	)
)
