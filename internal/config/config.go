package config

import (
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppEnv        string `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN" required:"true"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`

	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`
	CookieSecure  bool   `envconfig:"COOKIE_SECURE" default:"false"`
	CookieDomain  string `envconfig:"COOKIE_DOMAIN" default:""`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:5173"`

	SportsAPIBaseURL string        `envconfig:"SPORTS_API_BASE_URL" required:"true"`
	SportsAPIKey     string        `envconfig:"SPORTS_API_KEY" default:""`
	SportsAPITimeout time.Duration `envconfig:"SPORTS_API_TIMEOUT" default:"5s"`
	GamesCacheTTL    time.Duration `envconfig:"GAMES_CACHE_TTL" default:"30s"`

	AdminUserIDs          []string `envconfig:"ADMIN_USER_IDS" default:""`
	JoinAttemptsPerMinute int      `envconfig:"JOIN_ATTEMPTS_PER_MINUTE" default:"20"`

	WSConnIdleTimeout time.Duration `envconfig:"WS_CONN_IDLE_TIMEOUT" default:"60s"`
	WSRoomIdleTimeout time.Duration `envconfig:"WS_ROOM_IDLE_TIMEOUT" default:"10m"`
	WSSweepInterval   time.Duration `envconfig:"WS_SWEEP_INTERVAL" default:"10s"`
}

func Load() (Config, error) {
	envPaths := []string{".env", filepath.Join(".", ".env")}

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	var c Config
	err := envconfig.Process("", &c)
	return c, err
}

func (c Config) IsDev() bool {
	return c.AppEnv == "dev"
}
