package config

import (
	"github.com/rs/zerolog/log"
)

// Database configuration for the receipt history. History is optional: when DB_NAME is not
// set the node runs without it.
var (
	DBEnabled  bool
	DBHost     string
	DBPort     uint64
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadDatabaseConfig loads the database settings from environment variables.
func LoadDatabaseConfig() error {
	DBName = getEnvOrDefault("DB_NAME", "")
	DBEnabled = DBName != ""
	if !DBEnabled {
		log.Warn().Msg("DB_NAME not set, execution history is disabled.")
		return nil
	}

	var err error

	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}

	DBHost = getEnvOrDefault("DB_HOST", "localhost")
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	DBPort = 5432
	if getEnvOrDefault("DB_PORT", "") != "" {
		DBPort, err = getEnvAsUint64("DB_PORT")
		if err != nil {
			return err
		}
	}

	log.Debug().
		Str("DBHost", DBHost).
		Uint64("DBPort", DBPort).
		Str("DBName", DBName).
		Msg("Database configuration loaded successfully.")
	return nil
}
