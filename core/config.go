package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (local; default), TEST, QA, PROD
		Build    string
		AppName  string

		RollbarToken string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Progress ProgressConfig
	}

	ServerConfig struct {
		Host            string
		Port            int
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          int
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr         string
		Password     string
		DB           int
		EventChannel string
	}

	// ProgressConfig holds the progression engine's policy knobs.
	ProgressConfig struct {
		// MaxEvidenceAge rejects location fixes captured longer than this before submission.
		MaxEvidenceAge time.Duration
		// PassingThreshold is the fraction of correct quiz answers required to earn the step's points.
		PassingThreshold float64
		// BonusPolicy is one of "threshold" (all-or-nothing at PassingThreshold) or
		// "proportional" (points scale with the fraction of correct answers).
		BonusPolicy string
		// ResetRetention is one of "archive" or "delete" and controls what happens
		// to prior completions on a reset-for-replay.
		ResetRetention string
		// ResetRetainsPoints tells the reward gateway whether points accrued before
		// a reset remain spendable. Product decision; kept explicit on purpose.
		ResetRetainsPoints bool
		// SweepSchedule is the cron spec for the periodic repair sweep.
		SweepSchedule string
	}
)

func (c ServerConfig) Address() string   { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
func (c DatabaseConfig) Address() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Wayquest")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 20*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "wayquest")
	v.SetDefault("database.user", "wayquest")
	v.SetDefault("database.password", "wayquest")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.eventChannel", "wayquest.progress.events")

	v.SetDefault("progress.maxEvidenceAge", 5*time.Minute)
	v.SetDefault("progress.passingThreshold", 0.5)
	v.SetDefault("progress.bonusPolicy", "threshold")
	v.SetDefault("progress.resetRetention", "archive")
	v.SetDefault("progress.resetRetainsPoints", false)
	v.SetDefault("progress.sweepSchedule", "0 */6 * * *")

	env := os.Getenv("ENV")
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{Env: env}
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
	return conf
}
