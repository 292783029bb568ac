package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Counter    CounterConfig    `json:"counter"`
	Signup     SignupConfig     `json:"signup"`
	Tiers      []TierConfig     `json:"tiers"`
	Auth       AuthConfig       `json:"auth"`
	Throttle   ThrottleConfig   `json:"throttle"`
	MailServer MailServerConfig `json:"mail_server"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return r.Host + ":" + r.Port
}

type CounterConfig struct {
	// Backend is one of "postgres", "redis", "memory".
	Backend string `json:"backend"`
}

type SignupConfig struct {
	HourlyBound int           `json:"hourly_bound"`
	DailyBound  int           `json:"daily_bound"`
	Captcha     CaptchaConfig `json:"captcha"`
}

type CaptchaConfig struct {
	Enabled   bool   `json:"enabled"`
	VerifyURL string `json:"verify_url"`
	Secret    string `json:"secret"`
}

type TierConfig struct {
	Name        string `json:"name"`
	HourlyBound int    `json:"hourly_bound"`
	DailyBound  int    `json:"daily_bound"`
}

type AuthConfig struct {
	JWTSecret   string `json:"jwt_secret"`
	ExpiryHours int    `json:"expiry_hours"`
}

type ThrottleConfig struct {
	// Requests per second and burst for the public signup endpoint,
	// applied per client IP before any durable counter is touched.
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

type MailServerConfig struct {
	Targets        []string `json:"targets"`
	Strategy       string   `json:"strategy"`
	APIToken       string   `json:"api_token"`
	HealthEndpoint string   `json:"health_endpoint"`
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Secrets come from the environment when set, so the config file can be
// committed without them.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("CAPTCHA_SECRET"); v != "" {
		c.Signup.Captcha.Secret = v
	}
	if v := os.Getenv("MAILSERVER_API_TOKEN"); v != "" {
		c.MailServer.APIToken = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == "" {
		c.Redis.Port = "6379"
	}
	if c.Counter.Backend == "" {
		c.Counter.Backend = "postgres"
	}
	if c.Signup.HourlyBound <= 0 {
		c.Signup.HourlyBound = 5
	}
	if c.Signup.DailyBound <= 0 {
		c.Signup.DailyBound = 10
	}
	if c.Auth.ExpiryHours <= 0 {
		c.Auth.ExpiryHours = 24
	}
	if c.Throttle.RPS <= 0 {
		c.Throttle.RPS = 2
	}
	if c.Throttle.Burst <= 0 {
		c.Throttle.Burst = 5
	}
	if len(c.Tiers) == 0 {
		c.Tiers = []TierConfig{
			{Name: "free", HourlyBound: 10, DailyBound: 50},
			{Name: "basic", HourlyBound: 50, DailyBound: 500},
			{Name: "premium", HourlyBound: 200, DailyBound: 2000},
			{Name: "enterprise", HourlyBound: 1000, DailyBound: 20000},
		}
	}
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set JWT_SECRET)")
	}
	if c.Signup.Captcha.Enabled && c.Signup.Captcha.Secret == "" {
		return fmt.Errorf("signup.captcha.secret is required when captcha is enabled")
	}
	return nil
}
