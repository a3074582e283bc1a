// chroniccost - chronic-condition combination & cost analytics over CMS
// DE-SynPUF sample data.
//
// Usage:
//   chroniccost fetch --data-dir data
//   chroniccost analyze --members data/DE1_0_2009_Beneficiary_Summary_File_Sample_20.csv
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"chronic-cost/internal/combination"
	"chronic-cost/internal/conditions"
	"chronic-cost/internal/distribution"
	"chronic-cost/internal/fetch"
	"chronic-cost/internal/report"
	"chronic-cost/internal/synpuf"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "chroniccost",
		Usage:   "Chronic-condition combination & cost analytics for CMS SynPUF data",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"CHRONICOST_LOG_LEVEL"},
			},
		},

		Before: func(c *cli.Context) error {
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return fmt.Errorf("bad log level %q: %w", c.String("log-level"), err)
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().Timestamp().Logger()
			return nil
		},

		Commands: []*cli.Command{
			fetchCommand(),
			analyzeCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// FETCH COMMAND
// =============================================================================

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Download and unpack the SynPUF sample archives",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Value:   "data",
				Usage:   "Directory to download and extract into",
				EnvVars: []string{"CHRONICOST_DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "base-url",
				Value:   fetch.DefaultBaseURL,
				Usage:   "Archive download root",
				EnvVars: []string{"CHRONICOST_BASE_URL"},
			},
			&cli.IntFlag{
				Name:  "retries",
				Value: 3,
				Usage: "Download retries per archive",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Minute,
				Usage: "Per-attempt download timeout",
			},
		},
		Action: runFetch,
	}
}

func runFetch(c *cli.Context) error {
	dataDir := c.String("data-dir")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	client := fetch.NewClient(c.Int("retries"), c.Duration("timeout"), log.Logger)
	for _, a := range fetch.DefaultArchives() {
		if _, err := client.FetchArchive(c.Context, c.String("base-url"), a, dataDir); err != nil {
			return fmt.Errorf("fetch %s: %w", a.Label, err)
		}
	}
	return nil
}

// =============================================================================
// ANALYZE COMMAND
// =============================================================================

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Run the combination & cost analysis and write the result tables",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "members",
				Aliases:  []string{"m"},
				Usage:    "Path to the beneficiary summary CSV",
				Required: true,
				EnvVars:  []string{"CHRONICOST_MEMBERS_FILE"},
			},
			&cli.StringFlag{
				Name:    "claims",
				Usage:   "Path to the outpatient claims CSV (optional, linkage stats only)",
				EnvVars: []string{"CHRONICOST_CLAIMS_FILE"},
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   "results",
				Usage:   "Output directory for the result tables",
				EnvVars: []string{"CHRONICOST_OUT_DIR"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "csv",
				Usage:   "Output format (csv, parquet)",
				EnvVars: []string{"CHRONICOST_FORMAT"},
			},
			&cli.IntFlag{
				Name:  "reference-year",
				Value: conditions.DefaultReferenceYear,
				Usage: "Reference year for age derivation",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Aggregation worker shards (default: GOMAXPROCS)",
			},
		},
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	format, err := report.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	// Input problems are fatal before any computation starts.
	membersFile := c.String("members")
	log.Info().Str("file", membersFile).Msg("loading member records")
	members, err := synpuf.LoadMembers(membersFile)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	log.Info().Int("members", len(members)).Msg("member records loaded")

	var claims []synpuf.Claim
	if claimsFile := c.String("claims"); claimsFile != "" {
		log.Info().Str("file", claimsFile).Msg("loading claim records")
		claims, err = synpuf.LoadClaims(claimsFile)
		if err != nil {
			return fmt.Errorf("load claims: %w", err)
		}
		logClaimLinkage(members, claims)
	}

	referenceYear := c.Int("reference-year")
	profiles := conditions.ExtractAll(members, referenceYear)

	engine := combination.NewEngine().WithWorkers(c.Int("workers"))
	rep, err := engine.Run(c.Context, profiles)
	if err != nil {
		return fmt.Errorf("combination analysis: %w", err)
	}
	log.Info().
		Str("run_id", rep.RunID.String()).
		Int("exact_sets", len(rep.Rows)).
		Int("realized_subsets", len(rep.Occurrences)).
		Msg("combination & cost aggregation complete")

	summary := distribution.Summarize(profiles)
	log.Info().Int("rows", len(summary.Rows)).Msg("distribution summary complete")

	writer := report.NewWriter(c.String("out"), format)

	combPath, err := writer.WriteCombination(rep)
	if err != nil {
		return fmt.Errorf("write combination report: %w", err)
	}
	distPath, err := writer.WriteDistribution(summary)
	if err != nil {
		return fmt.Errorf("write distribution report: %w", err)
	}

	manifest := report.NewManifest(rep)
	manifest.MembersFile = membersFile
	manifest.ClaimsFile = c.String("claims")
	manifest.ReferenceYear = referenceYear
	manifest.ClaimCount = int64(len(claims))
	manifest.DistributionRows = len(summary.Rows)
	manifestPath, err := writer.WriteManifest(manifest)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	log.Info().
		Str("combination", combPath).
		Str("distribution", distPath).
		Str("manifest", manifestPath).
		Msg("reports written")
	return nil
}

// logClaimLinkage reports how the claims file relates to the member
// population. Claims never feed the aggregation; cost is attributed to each
// member's whole condition profile.
func logClaimLinkage(members []synpuf.Member, claims []synpuf.Claim) {
	ids := make(map[string]struct{}, len(members))
	for i := range members {
		ids[members[i].ID] = struct{}{}
	}

	linked := make(map[string]struct{})
	orphaned := 0
	for i := range claims {
		if _, ok := ids[claims[i].MemberID]; ok {
			linked[claims[i].MemberID] = struct{}{}
		} else {
			orphaned++
		}
	}

	log.Info().
		Int("claims", len(claims)).
		Int("members_with_claims", len(linked)).
		Int("orphaned_claims", orphaned).
		Msg("claim records loaded")
}
