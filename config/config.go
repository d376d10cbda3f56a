package config

import (
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Port string `env:"PORT" envDefault:"5250"`

		// Comma separated list of origins allowed by the CORS middleware
		AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

		LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	}

	Database struct {
		// Either "sqlite3" or "postgres"
		Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
		DSN    string `env:"DB_DSN" envDefault:"database/discovery.db"`

		// Fail-fast timeout applied to every store query
		QueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"5s"`
	}

	Geocoding struct {
		BaseURL   string        `env:"REVERSE_GEOCODE_API" envDefault:"https://nominatim.openstreetmap.org"`
		UserAgent string        `env:"GEOCODE_USER_AGENT" envDefault:"ggnHomes Discovery/1.0"`
		Timeout   time.Duration `env:"GEOCODE_TIMEOUT" envDefault:"8s"`

		// Nominatim's usage policy allows one request per second
		RequestsPerSecond float64 `env:"GEOCODE_RPS" envDefault:"1"`

		// Coordinates closer than this to an already geocoded point reuse its address
		ReuseRadiusMeters float64 `env:"GEOCODE_REUSE_RADIUS_M" envDefault:"75"`

		CacheDir string `env:"GEOCODE_CACHE_DIR" envDefault:""`

		// Oldest cached addresses are evicted past this size
		MaxCacheEntries int `env:"GEOCODE_CACHE_MAX" envDefault:"5000"`
	}

	Discovery struct {
		// Size of the generic feed served to anonymous visitors
		GenericFeedCap int `env:"FEED_GENERIC_CAP" envDefault:"15"`

		// Size of the personalized feed for authenticated users
		PersonalFeedCap int `env:"FEED_PERSONAL_CAP" envDefault:"20"`

		HistoryLimit int    `env:"SEARCH_HISTORY_LIMIT" envDefault:"10"`
		DefaultArea  string `env:"DEFAULT_AREA" envDefault:"Gurgaon"`
	}

	Autocomplete struct {
		MaxSuggestions int `env:"AUTOCOMPLETE_MAX" envDefault:"10"`

		// How often the index reloads area names from the database
		RefreshInterval time.Duration `env:"AUTOCOMPLETE_REFRESH" envDefault:"10m"`

		// Optional JSON file with extra area names
		SeedFile string `env:"AREA_SEED_FILE" envDefault:""`
	}

	// Engagement event processing
	Engagement struct {
		// Number of buffered events before Push starts rejecting
		QueueSize int `env:"ENGAGEMENT_QUEUE_SIZE" envDefault:"1024"`

		// Number of concurrent event processors
		ProcessorCount int `env:"ENGAGEMENT_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for a failed event
		MaxRetries int `env:"ENGAGEMENT_MAX_RETRIES" envDefault:"3"`

		// Delay between retries
		RetryDelay time.Duration `env:"ENGAGEMENT_RETRY_DELAY" envDefault:"500ms"`
	}
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
