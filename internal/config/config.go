package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/imrishuroy/affiliate-orderflow/internal/validation"
)

const (
	defaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	defaultPortalURL   = "https://aff.dhgate.com/affiliateCenter/affiliateOrders"
	defaultExportURL   = "https://aff.dhgate.com/api/affiliate/order/exportOrders"
	defaultRedirectURL = "https://izeeto.com/conv"
)

// Config captures all runtime configuration for the sync pipeline and the API.
type Config struct {
	App     AppConfig
	Portal  PortalConfig
	Browser BrowserConfig
	Storage StorageConfig
	AWS     AWSConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
	RunLocal bool
	Port     int `validate:"min=1,max=65535"`
}

// PortalConfig describes the vendor portal and the credentials used against it.
type PortalConfig struct {
	Username        string
	Password        string
	LoginURL        string        `validate:"required,url"`
	ExportURL       string        `validate:"required,url"`
	RedirectBaseURL string        `validate:"required,url"`
	UserAgent       string        `validate:"required"`
	AuthToken       string        // manual override; skips browser token extraction
	RequestTimeout  time.Duration `validate:"gt=0"`
	MaxRedirects    int           `validate:"min=1"` // hop budget per order resolution
}

// BrowserConfig controls the automated browser session.
type BrowserConfig struct {
	Headless           bool
	ExtraFlags         []string
	NetworkIdleTimeout time.Duration `validate:"gt=0"`
}

// StorageConfig holds local filesystem locations.
type StorageConfig struct {
	DownloadDir      string `validate:"required"`
	HeadersCacheFile string `validate:"required"`
}

// AWSConfig holds the ledger table and the optional SQS/CloudWatch targets.
type AWSConfig struct {
	Region           string
	EndpointOverride string `validate:"omitempty,url"`
	OrdersTable      string `validate:"required"`
	QueueURL         string `validate:"omitempty,url"`
	MetricsNamespace string
	// TriggersTable records scheduled trigger claims; empty disables dedupe.
	TriggersTable string
	TriggerTTL    time.Duration `validate:"gt=0"`
}

// Overrides are command-line values that take precedence over the environment.
// Empty strings and nil pointers leave the loaded value untouched.
type Overrides struct {
	Username    string
	Password    string
	DownloadDir string
	Headless    *bool
}

// Load reads .env (if present) and the process environment, applies defaults,
// validates the result and returns a populated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)
	cfg.App.RunLocal = ldr.getBool("RUN_LOCAL", false, false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8080, false)

	cfg.Portal.Username = ldr.getString("DHGATE_USERNAME", "", false)
	cfg.Portal.Password = ldr.getString("DHGATE_PASSWORD", "", false)
	cfg.Portal.LoginURL = ldr.getString("PORTAL_URL", defaultPortalURL, false)
	cfg.Portal.ExportURL = ldr.getString("EXPORT_URL", defaultExportURL, false)
	cfg.Portal.RedirectBaseURL = ldr.getString("REDIRECT_BASE_URL", defaultRedirectURL, false)
	cfg.Portal.UserAgent = ldr.getString("USER_AGENT", defaultUserAgent, false)
	cfg.Portal.AuthToken = ldr.getString("AUTH_TOKEN", "", false)
	cfg.Portal.RequestTimeout = time.Duration(ldr.getInt("REQUEST_TIMEOUT", 30, false)) * time.Second
	cfg.Portal.MaxRedirects = ldr.getInt("MAX_REDIRECTS", 2, false)

	cfg.Browser.Headless = ldr.getBool("HEADLESS", true, false)
	cfg.Browser.ExtraFlags = ldr.getStringSlice("CHROME_OPTIONS", false)
	cfg.Browser.NetworkIdleTimeout = time.Duration(ldr.getInt("NETWORK_IDLE_TIMEOUT", 30, false)) * time.Second

	cfg.Storage.DownloadDir = ldr.getString("DOWNLOAD_DIR", "./downloads", false)
	cfg.Storage.HeadersCacheFile = ldr.getString("HEADERS_CACHE_FILE", "headers_cache.txt", false)

	cfg.AWS.Region = ldr.getString("AWS_REGION", "us-east-1", false)
	cfg.AWS.EndpointOverride = ldr.getString("AWS_ENDPOINT_OVERRIDE", "", false)
	cfg.AWS.OrdersTable = ldr.getString("ORDERS_TABLE", "affiliate-orders", false)
	cfg.AWS.QueueURL = ldr.getString("ORDERS_QUEUE_URL", "", false)
	cfg.AWS.MetricsNamespace = ldr.getString("METRICS_NAMESPACE", "", false)
	cfg.AWS.TriggersTable = ldr.getString("TRIGGERS_TABLE", "", false)
	cfg.AWS.TriggerTTL = time.Duration(ldr.getInt("TRIGGER_TTL_HOURS", 48, false)) * time.Hour

	if err := ldr.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Apply merges command-line overrides into the config.
func (c *Config) Apply(o Overrides) {
	if o.Username != "" {
		c.Portal.Username = o.Username
	}
	if o.Password != "" {
		c.Portal.Password = o.Password
	}
	if o.DownloadDir != "" {
		c.Storage.DownloadDir = o.DownloadDir
	}
	if o.Headless != nil {
		c.Browser.Headless = *o.Headless
	}
}

// Validate runs struct validation over every section.
func (c *Config) Validate() error {
	v := validation.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return errors.New("config: " + strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val != "" {
			return val
		}
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return parsed
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
