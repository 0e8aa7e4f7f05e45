package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	controller "leadpilot/controllers"
	"leadpilot/ledger"
	"leadpilot/models"
	"leadpilot/utils"
)

type idleScraper struct{}

func (idleScraper) Scrape(context.Context, utils.ScrapeOptions, utils.EventFunc) ([]models.Lead, error) {
	return nil, nil
}

type idleRunner struct{}

func (idleRunner) RunOnce(context.Context) (models.RunReport, error) {
	return models.RunReport{Kind: models.ReportFollowup}, nil
}

func newTestApp(secret string, rateLimit int) *fiber.App {
	app := fiber.New()
	SetupRoutes(app, Deps{
		Scrape:    controller.NewScrapeController(context.Background(), utils.NewMemoryJobStore(), idleScraper{}),
		Ledger:    controller.NewLedgerController(ledger.Open(nil)),
		Followups: controller.NewFollowupController(idleRunner{}),
		JWTSecret: secret,
		RateLimit: rateLimit,
	})
	return app
}

func TestHealthAndNotFound(t *testing.T) {
	app := newTestApp("", 5)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAPIRequiresTokenWhenSecretSet(t *testing.T) {
	app := newTestApp("s3cret", 5)
	token, err := utils.GenerateAPIToken("s3cret", "n8n", time.Hour)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ledger/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ledger/stats?token="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/followups/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPIOpenWithoutSecret(t *testing.T) {
	app := newTestApp("", 5)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ledger/contacted/3312345678", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestScrapeStartIsRateLimited(t *testing.T) {
	app := newTestApp("", 1)

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape/start", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusBadRequest, post())
	assert.Equal(t, fiber.StatusTooManyRequests, post())
}

func TestProgressRequiresUpgrade(t *testing.T) {
	app := newTestApp("", 5)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/scrape/progress", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
