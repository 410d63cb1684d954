package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Queue    *queueConfig
	Provider *providerConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"guideforge"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address        string `envconfig:"GUIDEFORGE_ADDRESS" default:":8080"`
	MetricsAddress string `envconfig:"GUIDEFORGE_METRICS_ADDRESS" default:":8081"`
	BaseUrl        string `envconfig:"GUIDEFORGE_BASE_URL" default:"http://localhost:8080"`
	LogLevel       string `envconfig:"GUIDEFORGE_LOG_LEVEL" default:"info"`
	Auth           Auth
}

type Auth struct {
	AuthenticationType string `envconfig:"GUIDEFORGE_AUTH" default:""`
	SessionSigningKey  string `envconfig:"GUIDEFORGE_SESSION_SIGNING_KEY" default:""`
	TriggerSecret      string `envconfig:"GUIDEFORGE_TRIGGER_SECRET" default:""`
}

type queueConfig struct {
	ConcurrencyCap int           `envconfig:"GUIDEFORGE_CONCURRENCY_CAP" default:"2"`
	JobsPerTick    int           `envconfig:"GUIDEFORGE_JOBS_PER_TICK" default:"5"`
	TickInterval   time.Duration `envconfig:"GUIDEFORGE_TICK_INTERVAL" default:"1m"`
	MaxWaitPerTick time.Duration `envconfig:"GUIDEFORGE_MAX_WAIT_PER_TICK" default:"30s"`
	RateWindow     time.Duration `envconfig:"GUIDEFORGE_RATE_WINDOW" default:"1m"`
	CallsPerWindow int           `envconfig:"GUIDEFORGE_CALLS_PER_WINDOW" default:"20"`
	CallsPerGuide  int           `envconfig:"GUIDEFORGE_CALLS_PER_GUIDE" default:"3"`
	MaxErrorLength int           `envconfig:"GUIDEFORGE_MAX_ERROR_LENGTH" default:"500"`
}

type providerConfig struct {
	APIKey    string `envconfig:"GUIDEFORGE_PROVIDER_API_KEY" default:""`
	Model     string `envconfig:"GUIDEFORGE_PROVIDER_MODEL" default:"claude-sonnet-4-5-20250929"`
	MaxTokens int64  `envconfig:"GUIDEFORGE_PROVIDER_MAX_TOKENS" default:"8192"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a config suitable for tests: an in-memory sqlite store
// shared across connections and no authentication.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type: "sqlite",
			Name: "file::memory:?cache=shared",
		},
		Service: &svcConfig{
			Address:  "localhost:0",
			LogLevel: "debug",
		},
		Queue: &queueConfig{
			ConcurrencyCap: 2,
			JobsPerTick:    5,
			TickInterval:   time.Minute,
			MaxWaitPerTick: 30 * time.Second,
			RateWindow:     time.Minute,
			CallsPerWindow: 20,
			CallsPerGuide:  3,
			MaxErrorLength: 500,
		},
		Provider: &providerConfig{},
	}
}
