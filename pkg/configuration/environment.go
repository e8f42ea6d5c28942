package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/coverline/agency-sdk/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"agency_crm"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

// BlendingOptions are the data-quality thresholds for the commission rate
// blender. Finance tunes these without a code change, so they are environment
// configuration rather than literals.
type BlendingOptions struct {
	DefaultLookbackMonths int `env:"BLEND_DEFAULT_LOOKBACK_MONTHS" envDefault:"12"`
	LowMinPolicies        int `env:"BLEND_LOW_MIN_POLICIES" envDefault:"3"`
	MediumMinPolicies     int `env:"BLEND_MEDIUM_MIN_POLICIES" envDefault:"10"`
	HighMinPolicies       int `env:"BLEND_HIGH_MIN_POLICIES" envDefault:"25"`
	HighMinLookbackMonths int `env:"BLEND_HIGH_MIN_LOOKBACK_MONTHS" envDefault:"6"`
}

func (b *BlendingOptions) Validate() error {
	if b.DefaultLookbackMonths <= 0 {
		return fmt.Errorf("BLEND_DEFAULT_LOOKBACK_MONTHS must be positive, got %d", b.DefaultLookbackMonths)
	}
	if b.LowMinPolicies < 1 {
		return fmt.Errorf("BLEND_LOW_MIN_POLICIES must be at least 1, got %d", b.LowMinPolicies)
	}
	if b.MediumMinPolicies <= b.LowMinPolicies {
		return fmt.Errorf("BLEND_MEDIUM_MIN_POLICIES (%d) must exceed BLEND_LOW_MIN_POLICIES (%d)", b.MediumMinPolicies, b.LowMinPolicies)
	}
	if b.HighMinPolicies <= b.MediumMinPolicies {
		return fmt.Errorf("BLEND_HIGH_MIN_POLICIES (%d) must exceed BLEND_MEDIUM_MIN_POLICIES (%d)", b.HighMinPolicies, b.MediumMinPolicies)
	}
	return nil
}

type Configuration struct {
	Database DatabaseOptions
	Blending BlendingOptions

	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`

	// Override rate table, loaded once at startup. Malformed tables abort boot.
	OverrideRateTablePath string `env:"OVERRIDE_RATE_TABLE_PATH" envDefault:"config/override_rates.yaml"`

	// Reparenting a very large team cascades a path rewrite over the whole
	// subtree in one transaction; above this row count the mutation is refused.
	// Zero disables the cap.
	ReparentMaxSubtree int `env:"REPARENT_MAX_SUBTREE" envDefault:"5000"`

	// RLS enforcement mode (disabled/enforce).
	RLSEnforce string `env:"RLS_ENFORCE" envDefault:"disabled"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.Blending.Validate(); err != nil {
		return fmt.Errorf("blending configuration error: %w", err)
	}
	if err := c.validateRLS(); err != nil {
		return err
	}
	if c.ReparentMaxSubtree < 0 {
		return fmt.Errorf("REPARENT_MAX_SUBTREE must be non-negative, got %d", c.ReparentMaxSubtree)
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

func (c *Configuration) validateRLS() error {
	mode := strings.ToLower(strings.TrimSpace(c.RLSEnforce))
	if mode == "" {
		mode = "disabled"
	}
	switch mode {
	case "disabled", "enforce":
	default:
		return fmt.Errorf("invalid RLS_ENFORCE=%q (expected disabled|enforce)", c.RLSEnforce)
	}

	if mode == "enforce" && strings.EqualFold(strings.TrimSpace(c.Database.User), "postgres") {
		return fmt.Errorf("RLS_ENFORCE=enforce requires a non-superuser DB_USER (postgres will bypass RLS)")
	}

	c.RLSEnforce = mode
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
