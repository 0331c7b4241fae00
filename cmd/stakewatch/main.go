package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/slack-go/slack"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/malbeclabs/stakewatch/pkg/analysis"
	"github.com/malbeclabs/stakewatch/pkg/collector"
	"github.com/malbeclabs/stakewatch/pkg/geoip"
	"github.com/malbeclabs/stakewatch/pkg/logger"
	"github.com/malbeclabs/stakewatch/pkg/metrics"
	"github.com/malbeclabs/stakewatch/pkg/notify"
	"github.com/malbeclabs/stakewatch/pkg/server"
	"github.com/malbeclabs/stakewatch/pkg/snapshot"
	"github.com/malbeclabs/stakewatch/pkg/sol"
	"github.com/malbeclabs/stakewatch/pkg/valmeta"
)

// Populated at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// Chain configuration
	rpcURLFlag := flag.String("rpc-url", solanarpc.MainNetBeta_RPC, "Solana RPC endpoint (or set RPC_URL env var)")
	authoritiesFlag := flag.StringArray("authority", nil, "staking authority as name=pubkey, repeatable (or set AUTHORITIES env var, comma-separated)")

	// Validator directory configuration
	directoryURLFlag := flag.String("directory-url", "", "validator directory base URL (or set DIRECTORY_URL env var)")
	directoryTokenFlag := flag.String("directory-token", "", "validator directory API token (or set DIRECTORY_TOKEN env var)")

	// GeoIP configuration
	geoipCityDBFlag := flag.String("geoip-city-db", "", "path to a MaxMind city database (or set GEOIP_CITY_DB env var)")
	geoipASNDBFlag := flag.String("geoip-asn-db", "", "path to a MaxMind ASN database (or set GEOIP_ASN_DB env var)")

	// Snapshot configuration
	snapshotDirFlag := flag.String("snapshot-dir", "", "directory for JSON report snapshots (or set SNAPSHOT_DIR env var)")
	snapshotKeepFlag := flag.Int("snapshot-keep", 30, "how many file snapshots to retain, 0 keeps all")
	postgresDSNFlag := flag.String("postgres-dsn", "", "Postgres DSN for report history (or set POSTGRES_DSN env var)")
	s3BucketFlag := flag.String("s3-bucket", "", "S3 bucket for report archival (or set S3_BUCKET env var)")
	s3PrefixFlag := flag.String("s3-prefix", "", "key prefix within the S3 bucket")

	// Slack configuration
	slackTokenFlag := flag.String("slack-token", "", "Slack bot token for run summaries (or set SLACK_BOT_TOKEN env var)")
	slackChannelFlag := flag.String("slack-channel", "", "Slack channel for run summaries (or set SLACK_CHANNEL env var)")

	// Report tuning
	yieldRateFlag := flag.Float64("yield-rate", analysis.DefaultYieldRate, "annual yield rate used for reward estimates")
	maxCommissionFlag := flag.Float64("max-commission-pct", analysis.DefaultPolicy.MaxCommissionPct, "commission ceiling for policy flags")
	topNFlag := flag.Int("top-n", 10, "how many top validators to include per report section")

	// Run modes
	listenAddrFlag := flag.String("listen-addr", ":8080", "HTTP listen address (or set LISTEN_ADDR env var)")
	intervalFlag := flag.Duration("interval", 0, "rerun interval; 0 runs once and exits")
	migrateFlag := flag.Bool("migrate", false, "run Postgres migrations and exit")

	flag.Parse()

	log := logger.New(*verboseFlag)

	// Override flags with environment variables if set
	if env := os.Getenv("RPC_URL"); env != "" {
		*rpcURLFlag = env
	}
	if env := os.Getenv("AUTHORITIES"); env != "" {
		*authoritiesFlag = strings.Split(env, ",")
	}
	if env := os.Getenv("DIRECTORY_URL"); env != "" {
		*directoryURLFlag = env
	}
	if env := os.Getenv("DIRECTORY_TOKEN"); env != "" {
		*directoryTokenFlag = env
	}
	if env := os.Getenv("GEOIP_CITY_DB"); env != "" {
		*geoipCityDBFlag = env
	}
	if env := os.Getenv("GEOIP_ASN_DB"); env != "" {
		*geoipASNDBFlag = env
	}
	if env := os.Getenv("SNAPSHOT_DIR"); env != "" {
		*snapshotDirFlag = env
	}
	if env := os.Getenv("POSTGRES_DSN"); env != "" {
		*postgresDSNFlag = env
	}
	if env := os.Getenv("S3_BUCKET"); env != "" {
		*s3BucketFlag = env
	}
	if env := os.Getenv("SLACK_BOT_TOKEN"); env != "" {
		*slackTokenFlag = env
	}
	if env := os.Getenv("SLACK_CHANNEL"); env != "" {
		*slackChannelFlag = env
	}
	if env := os.Getenv("LISTEN_ADDR"); env != "" {
		*listenAddrFlag = env
	}

	if *migrateFlag {
		if *postgresDSNFlag == "" {
			return fmt.Errorf("--postgres-dsn is required for --migrate")
		}
		return snapshot.Migrate(log, *postgresDSNFlag)
	}

	authorities, err := parseAuthorities(*authoritiesFlag)
	if err != nil {
		return err
	}
	if len(authorities) == 0 {
		return fmt.Errorf("at least one --authority is required")
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Release:          version,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
		})
		if err != nil {
			return fmt.Errorf("failed to init sentry: %w", err)
		}
		defer sentry.Flush(5 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	chain, err := sol.NewClient(sol.ClientConfig{
		Logger: log,
		RPC:    solanarpc.New(*rpcURLFlag),
	})
	if err != nil {
		return fmt.Errorf("failed to create chain client: %w", err)
	}

	var directory collector.MetadataSource
	if *directoryURLFlag != "" {
		client, err := valmeta.NewClient(valmeta.ClientConfig{
			Logger:  log,
			BaseURL: *directoryURLFlag,
			Token:   *directoryTokenFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to create directory client: %w", err)
		}
		directory = client
	}

	var resolver geoip.Resolver
	if *geoipCityDBFlag != "" {
		maxmind, err := geoip.NewMaxMindResolver(geoip.Config{
			CityDBPath: *geoipCityDBFlag,
			ASNDBPath:  *geoipASNDBFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to open geoip databases: %w", err)
		}
		defer maxmind.Close()
		resolver = maxmind
	}

	coll, err := collector.New(collector.Config{
		Logger:      log,
		Chain:       chain,
		Directory:   directory,
		GeoIP:       resolver,
		Authorities: authorities,
		Assembler: analysis.AssemblerConfig{
			YieldRate: *yieldRateFlag,
			TopN:      *topNFlag,
			Policy: analysis.PolicyConfig{
				MaxCommissionPct:  *maxCommissionFlag,
				MaxJitoCommission: analysis.DefaultPolicy.MaxJitoCommission,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}

	sinks, cleanup, err := buildSinks(ctx, log, sinkFlags{
		snapshotDir:  *snapshotDirFlag,
		snapshotKeep: *snapshotKeepFlag,
		postgresDSN:  *postgresDSNFlag,
		s3Bucket:     *s3BucketFlag,
		s3Prefix:     *s3PrefixFlag,
		slackToken:   *slackTokenFlag,
		slackChannel: *slackChannelFlag,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := server.New(server.Config{
		Logger:     log,
		ListenAddr: *listenAddrFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
		Reports: coll,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("stakewatch starting",
		"version", version,
		"rpc_url", *rpcURLFlag,
		"authorities", len(authorities),
		"interval", *intervalFlag,
	)

	if *intervalFlag == 0 {
		// One-shot mode skips the HTTP server.
		return runOnce(ctx, log, coll, sinks)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(ctx)
	})
	group.Go(func() error {
		ticker := time.NewTicker(*intervalFlag)
		defer ticker.Stop()

		for {
			if err := runOnce(ctx, log, coll, sinks); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				sentry.CaptureException(err)
				log.Error("run failed", "error", err)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	return group.Wait()
}

func runOnce(ctx context.Context, log *slog.Logger, coll *collector.Collector, sinks []reportSink) error {
	span := sentry.StartSpan(ctx, "stakewatch.run")
	defer span.Finish()

	report, err := coll.Run(span.Context())
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return err
	}
	span.Status = sentry.SpanStatusOK

	for _, sink := range sinks {
		if err := sink.fn(ctx, report); err != nil {
			// Sink failures don't invalidate the run.
			sentry.CaptureException(err)
			log.Error("report sink failed", "sink", sink.name, "error", err)
		}
	}
	return nil
}

type reportSink struct {
	name string
	fn   func(ctx context.Context, report *analysis.Report) error
}

type sinkFlags struct {
	snapshotDir  string
	snapshotKeep int
	postgresDSN  string
	s3Bucket     string
	s3Prefix     string
	slackToken   string
	slackChannel string
}

func buildSinks(ctx context.Context, log *slog.Logger, flags sinkFlags) ([]reportSink, func(), error) {
	var sinks []reportSink
	var closers []func()
	cleanup := func() {
		for _, closer := range closers {
			closer()
		}
	}

	if flags.snapshotDir != "" {
		store, err := snapshot.NewFileStore(snapshot.FileStoreConfig{
			Logger: log,
			Dir:    flags.snapshotDir,
			Keep:   flags.snapshotKeep,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to create file store: %w", err)
		}
		sinks = append(sinks, reportSink{name: "file", fn: func(ctx context.Context, report *analysis.Report) error {
			_, err := store.Save(ctx, report)
			return err
		}})
	}

	if flags.postgresDSN != "" {
		pool, err := pgxpool.New(ctx, flags.postgresDSN)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		store, err := snapshot.NewPostgresStore(snapshot.PostgresStoreConfig{Logger: log, Pool: pool})
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to create postgres store: %w", err)
		}
		sinks = append(sinks, reportSink{name: "postgres", fn: store.Insert})
	}

	if flags.s3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to load aws config: %w", err)
		}
		store, err := snapshot.NewS3Store(snapshot.S3StoreConfig{
			Logger: log,
			Client: s3.NewFromConfig(awsCfg),
			Bucket: flags.s3Bucket,
			Prefix: flags.s3Prefix,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to create s3 store: %w", err)
		}
		sinks = append(sinks, reportSink{name: "s3", fn: func(ctx context.Context, report *analysis.Report) error {
			_, err := store.Upload(ctx, report)
			return err
		}})
	}

	if flags.slackToken != "" && flags.slackChannel != "" {
		notifier, err := notify.New(notify.Config{
			Logger:  log,
			Client:  slack.New(flags.slackToken),
			Channel: flags.slackChannel,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to create slack notifier: %w", err)
		}
		sinks = append(sinks, reportSink{name: "slack", fn: notifier.NotifyReport})
	}

	return sinks, cleanup, nil
}

func parseAuthorities(specs []string) ([]collector.Authority, error) {
	var authorities []collector.Authority
	for _, raw := range specs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid authority %q, want name=pubkey", raw)
		}
		pubkey, err := solana.PublicKeyFromBase58(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid authority pubkey %q: %w", value, err)
		}
		authorities = append(authorities, collector.Authority{
			Name:   strings.TrimSpace(name),
			Pubkey: pubkey,
		})
	}
	return authorities, nil
}
