package main

import (
	"os"

	"github.com/joho/godotenv"
)

// Config is loaded from the environment (and an optional .env file),
// grounded on Sergey-Bar-Alfred's gateway/config.go Load pattern.
type Config struct {
	Port         string
	DBPath       string
	Env          string
	RedisURL     string
	TaxTablePath string
	CORSOrigins  []string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:         getEnv("PORT", "8080"),
		DBPath:       getEnv("DB_PATH", "posengine.db"),
		Env:          getEnv("ENV", "development"),
		RedisURL:     getEnv("REDIS_URL", ""),
		TaxTablePath: getEnv("TAX_TABLE_PATH", ""),
		CORSOrigins:  []string{getEnv("CORS_ORIGIN", "*")},
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
