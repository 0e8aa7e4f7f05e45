package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"leadpilot/config"
	"leadpilot/models"
	"leadpilot/utils"
)

const (
	eventPollInterval = 500 * time.Millisecond
	streamMaxDuration = 30 * time.Minute
	storeCallTimeout  = 5 * time.Second
)

// JobScraper runs the scrape behind a job.
type JobScraper interface {
	Scrape(ctx context.Context, opts utils.ScrapeOptions, emit utils.EventFunc) ([]models.Lead, error)
}

type ScrapeController struct {
	Jobs    utils.JobStore
	Scraper JobScraper
	Logger  *logrus.Entry

	// baseCtx outlives requests so jobs keep running after the POST returns
	baseCtx context.Context
}

func NewScrapeController(ctx context.Context, jobs utils.JobStore, scraper JobScraper) *ScrapeController {
	return &ScrapeController{
		Jobs:    jobs,
		Scraper: scraper,
		Logger:  utils.Logger("scrape_controller"),
		baseCtx: ctx,
	}
}

// ScrapeRequest starts a job. Zero values fall back to the configured
// defaults.
type ScrapeRequest struct {
	URL            string `json:"url" validate:"required,url"`
	Niche          string `json:"niche" validate:"omitempty,max=100"`
	MaxLeads       int    `json:"max_leads" validate:"omitempty,min=1,max=500"`
	DelayMinMs     int    `json:"delay_min_ms" validate:"omitempty,min=0,max=60000"`
	DelayMaxMs     int    `json:"delay_max_ms" validate:"omitempty,min=0,max=60000,gtefield=DelayMinMs"`
	ExtractWebsite *bool  `json:"extract_website"`
	ExtractPhone   *bool  `json:"extract_phone"`
}

func (r ScrapeRequest) options() utils.ScrapeOptions {
	opts := utils.ScrapeOptions{
		URL:            r.URL,
		Niche:          r.Niche,
		MaxLeads:       r.MaxLeads,
		ExtractWebsite: true,
		ExtractPhone:   true,
	}
	if opts.MaxLeads == 0 {
		opts.MaxLeads = config.AppConfig.MaxLeads
	}
	opts.DelayMin, opts.DelayMax = config.AppConfig.Delay()
	if r.DelayMinMs > 0 || r.DelayMaxMs > 0 {
		opts.DelayMin = time.Duration(r.DelayMinMs) * time.Millisecond
		opts.DelayMax = time.Duration(r.DelayMaxMs) * time.Millisecond
	}
	if r.ExtractWebsite != nil {
		opts.ExtractWebsite = *r.ExtractWebsite
	}
	if r.ExtractPhone != nil {
		opts.ExtractPhone = *r.ExtractPhone
	}
	return opts
}

// StartScrape creates a job and runs it in the background
func (sc *ScrapeController) StartScrape(c *fiber.Ctx) error {
	var input ScrapeRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	job, err := sc.Jobs.Create(c.UserContext(), input.URL)
	if err != nil {
		sc.Logger.WithError(err).Error("Failed to create job")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create job", err)
	}

	go sc.runJob(job.ID, input.options())

	utils.LogEvent("scrape_job_started", map[string]interface{}{
		"job_id": job.ID,
		"url":    input.URL,
		"ip":     c.IP(),
	})
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": job.ID})
}

func (sc *ScrapeController) runJob(id string, opts utils.ScrapeOptions) {
	log := sc.Logger.WithField("job_id", id)
	ctx := sc.baseCtx

	emit := func(ev models.JobEvent) {
		if ev.Type == models.EventLead && ev.Data != nil {
			if err := sc.Jobs.AppendLead(ctx, id, *ev.Data); err != nil {
				log.WithError(err).Warn("Failed to store lead")
			}
		}
		if err := sc.Jobs.AppendEvent(ctx, id, ev); err != nil {
			log.WithError(err).Warn("Failed to store event")
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("scrape panicked: %v", r)
			utils.LogError("scrape_job_panic", err, map[string]interface{}{"job_id": id})
			sc.finish(ctx, id, err, emit)
		}
	}()

	leads, err := sc.Scraper.Scrape(ctx, opts, emit)
	log.WithField("leads", len(leads)).Info("Scrape job finished")
	sc.finish(ctx, id, err, emit)
}

func (sc *ScrapeController) finish(ctx context.Context, id string, runErr error, emit utils.EventFunc) {
	if runErr != nil {
		if err := sc.Jobs.Update(ctx, id, models.JobError, runErr.Error()); err != nil {
			sc.Logger.WithError(err).Warn("Failed to update job")
		}
		emit(models.JobEvent{Type: models.EventError, Message: runErr.Error(), JobID: id})
		return
	}
	if err := sc.Jobs.Update(ctx, id, models.JobDone, ""); err != nil {
		sc.Logger.WithError(err).Warn("Failed to update job")
	}
	emit(models.JobEvent{Type: models.EventDone, JobID: id})
}

// GetResult returns the job with every lead gathered so far
func (sc *ScrapeController) GetResult(c *fiber.Ctx) error {
	job, err := sc.Jobs.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return sc.jobError(c, err)
	}
	return c.JSON(utils.SuccessResponse(job))
}

// ExportCSV downloads the job's leads as CSV
func (sc *ScrapeController) ExportCSV(c *fiber.Ctx) error {
	job, err := sc.Jobs.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return sc.jobError(c, err)
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="leads_%s.csv"`, job.ID))
	return utils.WriteLeadsCSV(c, job.Leads)
}

// ExportJSON downloads the job's leads as a JSON array
func (sc *ScrapeController) ExportJSON(c *fiber.Ctx) error {
	job, err := sc.Jobs.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return sc.jobError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="leads_%s.json"`, job.ID))
	return utils.WriteLeadsJSON(c, job.Leads)
}

// StreamEvents pushes job events as server-sent events until the job ends
func (sc *ScrapeController) StreamEvents(c *fiber.Ctx) error {
	id := c.Params("id")
	lookupCtx, cancel := context.WithTimeout(c.UserContext(), storeCallTimeout)
	defer cancel()
	if _, err := sc.Jobs.Get(lookupCtx, id); err != nil {
		return sc.jobError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		err := sc.followEvents(sc.baseCtx, id, func(ev models.JobEvent) error {
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return err
			}
			return w.Flush()
		})
		if err != nil {
			sc.Logger.WithError(err).WithField("job_id", id).Debug("Event stream closed")
		}
	}))
	return nil
}

// Progress streams job events over a websocket. The client sends
// {"job_id": "..."} first.
func (sc *ScrapeController) Progress(c *websocket.Conn) {
	defer c.Close()

	var input struct {
		JobID string `json:"job_id"`
	}
	if err := c.ReadJSON(&input); err != nil {
		sc.Logger.WithError(err).Debug("Error reading JSON")
		return
	}

	err := sc.followEvents(sc.baseCtx, input.JobID, func(ev models.JobEvent) error {
		return c.WriteJSON(ev)
	})
	if errors.Is(err, utils.ErrJobNotFound) {
		c.WriteJSON(models.JobEvent{Type: models.EventError, Message: "job not found", JobID: input.JobID})
		return
	}
	if err != nil {
		sc.Logger.WithError(err).WithField("job_id", input.JobID).Debug("Progress socket closed")
	}
}

// followEvents polls the store and hands each new event to send until a
// terminal event went out.
func (sc *ScrapeController) followEvents(ctx context.Context, id string, send func(models.JobEvent) error) error {
	ctx, cancel := context.WithTimeout(ctx, streamMaxDuration)
	defer cancel()

	ticker := time.NewTicker(eventPollInterval)
	defer ticker.Stop()

	seen := 0
	for {
		events, err := sc.Jobs.Events(ctx, id, seen)
		if err != nil {
			return err
		}
		for _, ev := range events {
			seen++
			if err := send(ev); err != nil {
				return err
			}
			if ev.Terminal() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (sc *ScrapeController) jobError(c *fiber.Ctx, err error) error {
	if errors.Is(err, utils.ErrJobNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Job not found", nil)
	}
	sc.Logger.WithError(err).Error("Job store failure")
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load job", err)
}
