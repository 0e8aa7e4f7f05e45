package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"leadpilot/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// EvolutionConfig points at the Evolution API instance used for WhatsApp
// number checks and direct follow-up sends.
type EvolutionConfig struct {
	URL          string `json:"url"`
	APIKey       string `json:"-"`
	InstanceName string `json:"instance_name"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`

	WebhookURL  string `json:"webhook_url"`
	MaxLeads    int    `json:"max_leads"`
	DelayMinMs  int    `json:"delay_min_ms"`
	DelayMaxMs  int    `json:"delay_max_ms"`
	Headless    bool   `json:"headless"`
	BrowserBin  string `json:"browser_bin"`
	ZoneRetries int    `json:"max_zone_fallbacks"`

	OpenRouterAPIKey  string          `json:"-"`
	OpenRouterModel   string          `json:"openrouter_model"`
	OpenRouterBaseURL string          `json:"openrouter_base_url"`
	Evolution         EvolutionConfig `json:"evolution"`

	LedgerBackend     string `json:"ledger_backend"`
	LedgerPath        string `json:"ledger_path"`
	LedgerArchivePath string `json:"ledger_archive_path"`
	RetentionMonths   int    `json:"retention_months"`

	FollowupPolicy          string `json:"followup_policy"`
	FollowupChannel         string `json:"followup_channel"`
	FollowupIntervalMinutes int    `json:"followup_interval_minutes"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	Redis           RedisConfig `json:"redis"`
	RateLimitScrape int         `json:"rate_limit_scrape"`
	CORSOrigins     []string    `json:"cors_origins"`
	APIJWTSecret    string      `json:"-"`
	SentryDSN       string      `json:"-"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"`
	FromEmail    string `json:"from_email"`
	ReportEmail  string `json:"report_email"`
}

// Follow-up policies and channels accepted in FOLLOWUP_POLICY / FOLLOWUP_CHANNEL.
const (
	PolicyIndependent = "independent"
	PolicySequential  = "sequential"

	ChannelWebhook = "webhook"
	ChannelDirect  = "direct"

	BackendFile     = "file"
	BackendPostgres = "postgres"
)

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "8001"),

		// Webhook URLs pasted into CI secrets often carry a trailing newline
		WebhookURL:  strings.TrimSpace(getEnv("N8N_WEBHOOK_URL", "")),
		MaxLeads:    getEnvAsInt("MAX_LEADS", 10),
		DelayMinMs:  getEnvAsInt("DELAY_MIN_MS", 2000),
		DelayMaxMs:  getEnvAsInt("DELAY_MAX_MS", 5000),
		Headless:    getEnvAsBool("HEADLESS", true),
		BrowserBin:  getEnv("BROWSER_BIN", ""),
		ZoneRetries: getEnvAsInt("MAX_ZONE_FALLBACKS", 3),

		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "google/gemini-2.0-flash-exp:free"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		Evolution: EvolutionConfig{
			URL:          strings.TrimRight(getEnv("EVOLUTION_API_URL", ""), "/"),
			APIKey:       getEnv("EVOLUTION_API_KEY", ""),
			InstanceName: getEnv("EVOLUTION_INSTANCE_NAME", "claveai"),
		},

		LedgerBackend:     getEnv("LEDGER_BACKEND", BackendFile),
		LedgerPath:        getEnv("LEDGER_PATH", "leads_tracker.json"),
		LedgerArchivePath: getEnv("LEDGER_ARCHIVE_PATH", "leads_archive.json"),
		RetentionMonths:   getEnvAsInt("RETENTION_MONTHS", 0),

		FollowupPolicy:          getEnv("FOLLOWUP_POLICY", PolicyIndependent),
		FollowupChannel:         getEnv("FOLLOWUP_CHANNEL", ChannelWebhook),
		FollowupIntervalMinutes: getEnvAsInt("FOLLOWUP_INTERVAL_MINUTES", 60),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "leadpilot"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 20),

		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RateLimitScrape: getEnvAsInt("RATE_LIMIT_SCRAPE", 5),
		CORSOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS"),
		APIJWTSecret:    getEnv("API_JWT_SECRET", ""),
		SentryDSN:       getEnv("SENTRY_DSN", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		FromEmail:    getEnv("FROM_EMAIL", ""),
		ReportEmail:  getEnv("REPORT_EMAIL", ""),
	}

	if err := AppConfig.Validate(); err != nil {
		return err
	}

	logConfig()
	return nil
}

// Validate rejects contradictory settings. Missing integrations are not
// errors: the features they back are simply switched off.
func (c Config) Validate() error {
	if c.MaxLeads <= 0 {
		return fmt.Errorf("MAX_LEADS must be positive, got %d", c.MaxLeads)
	}
	if c.DelayMinMs < 0 || c.DelayMaxMs < c.DelayMinMs {
		return fmt.Errorf("invalid delay range %d-%dms", c.DelayMinMs, c.DelayMaxMs)
	}
	switch c.FollowupPolicy {
	case PolicyIndependent, PolicySequential:
	default:
		return fmt.Errorf("unknown FOLLOWUP_POLICY %q", c.FollowupPolicy)
	}
	switch c.FollowupChannel {
	case ChannelWebhook, ChannelDirect:
	default:
		return fmt.Errorf("unknown FOLLOWUP_CHANNEL %q", c.FollowupChannel)
	}
	switch c.LedgerBackend {
	case BackendFile:
	case BackendPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required for the postgres ledger backend")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	return nil
}

// Delay returns the configured pause range between page interactions.
func (c Config) Delay() (time.Duration, time.Duration) {
	return time.Duration(c.DelayMinMs) * time.Millisecond, time.Duration(c.DelayMaxMs) * time.Millisecond
}

func (c Config) AIEnabled() bool        { return c.OpenRouterAPIKey != "" }
func (c Config) EvolutionEnabled() bool { return c.Evolution.URL != "" && c.Evolution.APIKey != "" }
func (c Config) SMTPEnabled() bool      { return c.SMTPHost != "" && c.ReportEmail != "" }

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	if err := DB.AutoMigrate(&models.ContactRecord{}); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

// getEnvAsList splits a comma separated variable, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(getEnv(key, ""))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Webhook: %t | Max leads: %d | Delay: %d-%dms",
		AppConfig.WebhookURL != "",
		AppConfig.MaxLeads,
		AppConfig.DelayMinMs,
		AppConfig.DelayMaxMs)
	log.Printf("Ledger: %s (%s)", AppConfig.LedgerBackend, AppConfig.LedgerPath)
	log.Printf("Follow-ups: policy=%s channel=%s", AppConfig.FollowupPolicy, AppConfig.FollowupChannel)
	log.Printf("Integrations: AI(%t), Evolution(%t), Redis(%t), SMTP(%t), Sentry(%t)",
		AppConfig.AIEnabled(),
		AppConfig.EvolutionEnabled(),
		AppConfig.Redis.Enabled,
		AppConfig.SMTPEnabled(),
		AppConfig.SentryDSN != "")
}
