// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries all environment-level policy knobs. Capacity, start
// threshold and countdown length are policy, not constants: ops can tune
// them per deployment without a rebuild.
type Config struct {
	Port string

	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RedisDB       int

	MaxPlayersPerRace int // bounded 2-10
	MinPlayersToStart int
	CountdownSeconds  int
	RaceWordCount     int

	EmptyRaceCleanupDelay    time.Duration
	FinishedRaceCleanupDelay time.Duration
	SweepInterval            time.Duration
}

// Load reads the configuration from the environment, applying defaults.
func Load() *Config {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "typemaster"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MaxPlayersPerRace: getEnvInt("MAX_PLAYERS_PER_RACE", 6),
		MinPlayersToStart: getEnvInt("MIN_PLAYERS_TO_START", 2),
		CountdownSeconds:  getEnvInt("RACE_COUNTDOWN_SECONDS", 5),
		RaceWordCount:     getEnvInt("RACE_WORD_COUNT", 50),

		EmptyRaceCleanupDelay:    getEnvDuration("EMPTY_RACE_CLEANUP_DELAY", 30*time.Second),
		FinishedRaceCleanupDelay: getEnvDuration("FINISHED_RACE_CLEANUP_DELAY", 30*time.Second),
		SweepInterval:            getEnvDuration("RACE_SWEEP_INTERVAL", 10*time.Minute),
	}

	if cfg.MaxPlayersPerRace < 2 {
		cfg.MaxPlayersPerRace = 2
	}
	if cfg.MaxPlayersPerRace > 10 {
		cfg.MaxPlayersPerRace = 10
	}
	return cfg
}

// PostgresDSN assembles the connection string from the POSTGRES_* variables.
func PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		getEnv("POSTGRES_USER", "postgres"),
		getEnv("POSTGRES_PASSWORD", ""),
		getEnv("PG_HOST", "localhost"),
		getEnv("PG_PORT", "5432"),
		getEnv("PG_DATABASE", "typemaster"),
	)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
