package config

import (
	"errors"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"
)

// Node modes.
const (
	ModeLive    = "live"
	ModeSandbox = "sandbox"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// NodeMode selects the backend: "live" serves a deployed pool, "sandbox" runs one locally.
	NodeMode string

	// Bech32Prefix is the account address prefix of the target chain.
	Bech32Prefix string

	// LogLevel and LogFile configure the logger. LogFile is optional.
	LogLevel string
	LogFile  string

	// WebPort is the port of the HTTP API.
	WebPort string

	// TaxRate and TaxCap are the stability tax parameters of the sandbox chain.
	TaxRate sdkmath.LegacyDec
	TaxCap  sdkmath.Int

	// InitManifestPath is the YAML manifest the sandbox deploys its pool from.
	InitManifestPath string

	// NodeRPC (CometBFT RPC URL), NodeGRPC (host:port for wasm smart queries) and PoolContract
	// (the deployed pool) are only set in live mode.
	NodeRPC      string
	NodeGRPC     string
	PoolContract string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Which variables are required depends on NODE_MODE.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	NodeMode, err = getEnv("NODE_MODE")
	if err != nil {
		return err
	}
	if NodeMode != ModeLive && NodeMode != ModeSandbox {
		return errors.New("environment variable NODE_MODE must be 'live' or 'sandbox', got: " + NodeMode)
	}

	Bech32Prefix, err = getEnv("BECH32_PREFIX")
	if err != nil {
		return err
	}

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = getEnvOrDefault("LOG_FILE", "")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	// values of the other mode are cleared so a reload never serves stale settings
	switch NodeMode {
	case ModeLive:
		TaxRate, TaxCap, InitManifestPath = sdkmath.LegacyDec{}, sdkmath.Int{}, ""
		if err := loadLiveConfig(); err != nil {
			return err
		}
	case ModeSandbox:
		NodeRPC, NodeGRPC, PoolContract = "", "", ""
		if err := loadSandboxConfig(); err != nil {
			return err
		}
	}

	log.Debug().
		Str("NodeMode", NodeMode).
		Str("Bech32Prefix", Bech32Prefix).
		Str("WebPort", WebPort).
		Msg("Configuration loaded successfully.")

	return nil
}

// loadLiveConfig reads the endpoints of the chain serving the deployed pool.
func loadLiveConfig() error {
	var err error

	NodeRPC, err = getEnv("NODE_RPC")
	if err != nil {
		return err
	}
	if u, perr := url.Parse(NodeRPC); perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("environment variable NODE_RPC must be an http(s) URL, got: " + NodeRPC)
	}

	NodeGRPC, err = getEnv("NODE_GRPC")
	if err != nil {
		return err
	}
	if _, _, perr := net.SplitHostPort(NodeGRPC); perr != nil {
		return errors.New("environment variable NODE_GRPC must be host:port, got: " + NodeGRPC)
	}

	PoolContract, err = getEnv("POOL_CONTRACT")
	if err != nil {
		return err
	}
	if !strings.HasPrefix(PoolContract, Bech32Prefix+"1") {
		return errors.New("environment variable POOL_CONTRACT must be a " + Bech32Prefix + " address, got: " + PoolContract)
	}

	log.Debug().
		Str("NodeRPC", NodeRPC).
		Str("NodeGRPC", NodeGRPC).
		Str("PoolContract", PoolContract).
		Msg("Live endpoints loaded.")
	return nil
}

// loadSandboxConfig reads the tax parameters and deployment manifest of a local sandbox.
func loadSandboxConfig() error {
	var err error

	TaxRate, err = getEnvAsDec("TAX_RATE")
	if err != nil {
		return err
	}
	if TaxRate.GT(sdkmath.LegacyOneDec()) {
		return errors.New("environment variable TAX_RATE must not exceed 1, got: " + TaxRate.String())
	}
	TaxCap, err = getEnvAsInt("TAX_CAP")
	if err != nil {
		return err
	}
	InitManifestPath, err = getEnv("INIT_MANIFEST")
	if err != nil {
		return err
	}
	InitManifestPath, err = expandHome(InitManifestPath)
	return err
}

// expandHome expands a leading tilde (~) to the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to def when unset.
func getEnvOrDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDec retrieves an environment variable as a non-negative decimal.
func getEnvAsDec(key string) (sdkmath.LegacyDec, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	value, err := sdkmath.LegacyNewDecFromStr(valueStr)
	if err != nil || value.IsNegative() {
		return sdkmath.LegacyDec{}, errors.New("environment variable " + key + " must be a non-negative decimal, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as a non-negative integer amount.
func getEnvAsInt(key string) (sdkmath.Int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.Int{}, err
	}
	value, ok := sdkmath.NewIntFromString(valueStr)
	if !ok || value.IsNegative() {
		return sdkmath.Int{}, errors.New("environment variable " + key + " must be a non-negative integer, got: " + valueStr)
	}
	return value, nil
}
