package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"leadpilot/ledger"
	"leadpilot/models"
	"leadpilot/utils"
)

// LeadScraper runs one map search.
type LeadScraper interface {
	Scrape(ctx context.Context, opts utils.ScrapeOptions, emit utils.EventFunc) ([]models.Lead, error)
}

// LeadDispatcher sends a batch of leads and records the new ones.
type LeadDispatcher interface {
	Dispatch(ctx context.Context, leads []models.Lead) (utils.DispatchResult, error)
}

// DailyOptions configures a scheduled scrape.
type DailyOptions struct {
	MaxLeads        int
	DelayMin        time.Duration
	DelayMax        time.Duration
	ZoneFallbacks   int
	RetentionMonths int
	ArchivePath     string
	Reporter        utils.ReportSender
}

// DailyWorker resolves today's niche and zone, scrapes it and dispatches
// the new leads. When a zone yields nothing new it widens to the next zones.
type DailyWorker struct {
	scraper    LeadScraper
	dispatcher LeadDispatcher
	ledger     *ledger.Ledger
	opts       DailyOptions
	logger     *logrus.Entry
	now        func() time.Time
}

func NewDailyWorker(scraper LeadScraper, dispatcher LeadDispatcher, l *ledger.Ledger, opts DailyOptions) *DailyWorker {
	if opts.ZoneFallbacks < 0 {
		opts.ZoneFallbacks = 0
	}
	return &DailyWorker{
		scraper:    scraper,
		dispatcher: dispatcher,
		ledger:     l,
		opts:       opts,
		logger:     utils.Logger("daily_worker"),
		now:        time.Now,
	}
}

// Run performs one scheduled scrape. Failures of a single zone are recorded
// in the report and the sweep moves on; Run itself only fails on a
// cancelled context.
func (dw *DailyWorker) Run(ctx context.Context, dayOverride *int) (models.RunReport, error) {
	today := dw.now()
	report := models.RunReport{Kind: models.ReportScrape, StartedAt: today}

	if dw.opts.RetentionMonths > 0 && dw.opts.ArchivePath != "" {
		cutoff := today.AddDate(0, -dw.opts.RetentionMonths, 0)
		moved, err := dw.ledger.Archive(cutoff, dw.opts.ArchivePath)
		if err != nil {
			utils.LogError("ledger_archive_failed", err, map[string]interface{}{"cutoff": cutoff})
			report.Errors = append(report.Errors, "archive: "+err.Error())
		}
		report.ArchivedOld = moved
	}

	for offset := 0; offset <= dw.opts.ZoneFallbacks; offset++ {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = dw.now()
			return report, err
		}

		target := utils.ResolveTarget(today, dayOverride, offset)
		report.Target = &target
		report.ZonesTried++

		log := dw.logger.WithFields(logrus.Fields{
			"niche":       target.Niche,
			"zone":        target.ZoneName,
			"zone_offset": offset,
			"week":        target.WeekOfMonth,
			"day":         target.DayOfWeek,
		})
		log.Info("Scraping target")

		leads, err := dw.scraper.Scrape(ctx, utils.ScrapeOptions{
			URL:            target.SearchURL(),
			Niche:          target.Niche,
			MaxLeads:       dw.opts.MaxLeads,
			DelayMin:       dw.opts.DelayMin,
			DelayMax:       dw.opts.DelayMax,
			ExtractWebsite: true,
			ExtractPhone:   true,
		}, func(ev models.JobEvent) {
			log.WithField("event", ev.Type).Debug(ev.Message)
		})
		if err != nil {
			utils.LogError("scrape_target_failed", err, map[string]interface{}{
				"niche": target.Niche,
				"zone":  target.ZoneName,
			})
			report.Errors = append(report.Errors, target.ZoneName+": "+err.Error())
		}
		report.Scraped += len(leads)

		if len(leads) > 0 {
			result, err := dw.dispatcher.Dispatch(ctx, leads)
			report.NewLeads += result.New
			report.Duplicates += result.Duplicates
			report.Dropped += result.Dropped
			report.Dispatched = report.Dispatched || result.Sent
			if err != nil {
				report.Errors = append(report.Errors, "dispatch: "+err.Error())
			}
			if result.New > 0 {
				break
			}
		}

		if offset < dw.opts.ZoneFallbacks {
			log.Info("No new leads in zone, widening to the next one")
		}
	}

	report.FinishedAt = dw.now()
	utils.LogEvent("daily_scrape_completed", map[string]interface{}{
		"zones_tried": report.ZonesTried,
		"scraped":     report.Scraped,
		"new":         report.NewLeads,
		"duplicates":  report.Duplicates,
		"dispatched":  report.Dispatched,
	})
	if dw.opts.Reporter != nil {
		if err := dw.opts.Reporter.SendReport(report); err != nil {
			utils.LogError("report_send_failed", err, map[string]interface{}{"kind": report.Kind})
		}
	}
	return report, nil
}
