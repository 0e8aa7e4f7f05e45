package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"leadpilot/config"
	controller "leadpilot/controllers"
	"leadpilot/middleware"
	"leadpilot/routes"
	"leadpilot/utils"
	"leadpilot/worker"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// --- scrape ---

var scrapeCmd = &cobra.Command{
	Use:   "scrape [day]",
	Short: "Run today's scrape and send new leads to the webhook",
	Long: `Run today's scrape and send new leads to the webhook.

The niche comes from the week of the month and the day of the week; the
zone from the calendar month. An optional day argument (0=Monday..6=Sunday)
overrides the day of the week. When a zone yields no new leads the next
zones are tried, up to MAX_ZONE_FALLBACKS.

Examples:
  leadpilot scrape
  leadpilot scrape 3`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		var dayOverride *int
		if len(args) == 1 {
			dayOverride = utils.ParseDayOverride(args[0])
		}

		p, err := buildPipeline(config.AppConfig)
		if err != nil {
			return err
		}
		report, err := p.daily.Run(ctx, dayOverride)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

// --- followup ---

var followupCmd = &cobra.Command{
	Use:   "followup",
	Short: "Send the follow-up messages that are due",
	Long: `Send the follow-up messages that are due.

Stages go out 1, 2 and 5 days after the first contact. FOLLOWUP_POLICY picks
whether stages fire on elapsed time alone (independent) or only after the
previous stage (sequential); FOLLOWUP_CHANNEL picks the webhook or direct
sends through Evolution API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		p, err := buildPipeline(config.AppConfig)
		if err != nil {
			return err
		}
		report, err := p.followups.RunOnce(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scrape job API and run follow-ups on a schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		noWorker, _ := cmd.Flags().GetBool("no-followup-worker")
		cfg := config.AppConfig

		ctx, stop := signalContext()
		defer stop()

		p, err := buildPipeline(cfg)
		if err != nil {
			return err
		}

		var jobs utils.JobStore = utils.NewMemoryJobStore()
		var limiterStorage fiber.Storage
		if cfg.Redis.Enabled {
			client := newRedisClient(cfg.Redis)
			defer client.Close()
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("connecting to redis: %w", err)
			}
			jobs = utils.NewRedisJobStore(client)
			limiterStorage = middleware.NewRedisStorage(client)
		}

		app := fiber.New(fiber.Config{
			AppName:               "leadpilot " + version,
			DisableStartupMessage: cfg.Environment == "production",
		})
		routes.SetupRoutes(app, routes.Deps{
			Scrape:         controller.NewScrapeController(ctx, jobs, p.scraper),
			Ledger:         controller.NewLedgerController(p.ledger),
			Followups:      controller.NewFollowupController(p.followups),
			JWTSecret:      cfg.APIJWTSecret,
			RateLimit:      cfg.RateLimitScrape,
			CORSOrigins:    cfg.CORSOrigins,
			LimiterStorage: limiterStorage,
		})

		if !noWorker {
			go p.followups.Start(ctx)
		}

		errCh := make(chan error, 1)
		go func() {
			utils.Logger("server").Infof("🚀 Server starting on port %s", cfg.ServerPort)
			errCh <- app.Listen(":" + cfg.ServerPort)
		}()

		select {
		case <-ctx.Done():
			utils.Logger("server").Info("Shutting down...")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		}
		return app.ShutdownWithTimeout(5 * time.Second)
	},
}

// --- ledger ---

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and maintain the contact ledger",
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show contacted and pending follow-up counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger(config.AppConfig)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), l.Stats())
	},
}

var ledgerArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Move old records out of the follow-up rotation",
	Long: `Move records first contacted more than --months ago into the archive
file. Their phones stay in the ledger, so they are never messaged again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		months, _ := cmd.Flags().GetInt("months")
		output, _ := cmd.Flags().GetString("output")
		if months <= 0 {
			months = config.AppConfig.RetentionMonths
		}
		if months <= 0 {
			return errors.New("--months or RETENTION_MONTHS must be positive")
		}
		if output == "" {
			output = config.AppConfig.LedgerArchivePath
		}

		l, err := openLedger(config.AppConfig)
		if err != nil {
			return err
		}
		cutoff := time.Now().AddDate(0, -months, 0)
		moved, err := l.Archive(cutoff, output)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "archived %d records contacted before %s into %s\n",
			moved, cutoff.Format("2006-01-02"), output)
		return nil
	},
}

// --- token ---

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the job API",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := utils.GenerateAPIToken(config.AppConfig.APIJWTSecret, subject, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("no-followup-worker", false, "serve the API without the scheduled follow-up worker")

	ledgerArchiveCmd.Flags().Int("months", 0, "archive records older than this many months (default RETENTION_MONTHS)")
	ledgerArchiveCmd.Flags().String("output", "", "archive file (default LEDGER_ARCHIVE_PATH)")
	ledgerCmd.AddCommand(ledgerStatsCmd)
	ledgerCmd.AddCommand(ledgerArchiveCmd)

	tokenCmd.Flags().String("subject", "operator", "name recorded in the token")
	tokenCmd.Flags().Duration("ttl", 30*24*time.Hour, "token lifetime")

	rootCmd.AddCommand(scrapeCmd, followupCmd, serveCmd, ledgerCmd, tokenCmd)
	rootCmd.Version = version
}

// Compile-time checks that the workers satisfy what the API expects.
var (
	_ controller.FollowupRunner = (*worker.FollowupWorker)(nil)
	_ controller.JobScraper     = (*utils.MapsScraper)(nil)
)
