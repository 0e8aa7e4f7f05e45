package main

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"leadpilot/config"
	"leadpilot/ledger"
	"leadpilot/utils"
	"leadpilot/worker"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "leadpilot",
	Short:         "Scrape map listings into WhatsApp outreach and follow-ups",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		setupLogging(config.AppConfig)
		return initSentry(config.AppConfig)
	},
}

func main() {
	err := rootCmd.Execute()
	sentry.Flush(2 * time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(cfg config.Config) {
	if cfg.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(lvl)
	}
}

func initSentry(cfg config.Config) error {
	if cfg.SentryDSN == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     "leadpilot@" + version,
	})
}

// pipeline holds the collaborators every command builds from config.
type pipeline struct {
	ledger     *ledger.Ledger
	dispatcher *utils.Dispatcher
	scraper    *utils.MapsScraper
	reporter   utils.ReportSender
	evolution  *utils.EvolutionClient
	daily      *worker.DailyWorker
	followups  *worker.FollowupWorker
}

func openLedger(cfg config.Config) (*ledger.Ledger, error) {
	if cfg.LedgerBackend == config.BackendPostgres {
		if err := config.ConnectDB(); err != nil {
			return nil, err
		}
		return ledger.Open(ledger.NewGormBackend(config.DB)), nil
	}
	return ledger.NewFileLedger(cfg.LedgerPath), nil
}

func buildPipeline(cfg config.Config) (*pipeline, error) {
	log := utils.Logger("setup")

	l, err := openLedger(cfg)
	if err != nil {
		return nil, err
	}
	p := &pipeline{ledger: l}

	var webhook utils.WebhookSender
	if cfg.WebhookURL != "" {
		webhook = utils.NewWebhookClient(cfg.WebhookURL, 0)
	} else {
		log.Warn("N8N_WEBHOOK_URL not set, leads will not be dispatched")
	}
	p.dispatcher = utils.NewDispatcher(l, webhook, utils.SourceDailyScraper)

	var generator utils.TextGenerator
	if cfg.AIEnabled() {
		generator = utils.NewAnalyzer(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, cfg.OpenRouterModel)
	} else {
		log.Info("OPENROUTER_API_KEY not set, using message templates only")
	}

	var checker utils.WhatsAppChecker
	if cfg.EvolutionEnabled() {
		p.evolution = utils.NewEvolutionClient(cfg.Evolution.URL, cfg.Evolution.APIKey, cfg.Evolution.InstanceName)
		checker = p.evolution
	}

	p.scraper = utils.NewMapsScraper(
		utils.NewRodBrowser(cfg.Headless, cfg.BrowserBin),
		utils.NewWebsiteFetcher(),
		utils.NewComposer(generator),
		checker,
	)

	if mailer := utils.NewReportMailer(cfg); mailer != nil {
		p.reporter = mailer
	}

	delayMin, delayMax := cfg.Delay()
	p.daily = worker.NewDailyWorker(p.scraper, p.dispatcher, l, worker.DailyOptions{
		MaxLeads:        cfg.MaxLeads,
		DelayMin:        delayMin,
		DelayMax:        delayMax,
		ZoneFallbacks:   cfg.ZoneRetries,
		RetentionMonths: cfg.RetentionMonths,
		ArchivePath:     cfg.LedgerArchivePath,
		Reporter:        p.reporter,
	})

	opts := worker.FollowupOptions{
		Policy:   cfg.FollowupPolicy,
		Channel:  cfg.FollowupChannel,
		Interval: time.Duration(cfg.FollowupIntervalMinutes) * time.Minute,
		Reporter: p.reporter,
	}
	if cfg.WebhookURL != "" {
		opts.Webhook = utils.NewFollowupWebhookClient(cfg.WebhookURL)
	}
	if p.evolution != nil {
		opts.Sender = p.evolution
	}
	p.followups = worker.NewFollowupWorker(l, opts)

	return p, nil
}

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
