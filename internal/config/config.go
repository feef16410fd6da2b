// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/omnivault/omnivault/internal/validate"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database (audit trail)
	DatabaseURL string `koanf:"database_url"`

	// JWT Authentication
	JWTSecret string `koanf:"jwt_secret"`
	// JWTSecretPrevious keeps tokens signed with the old secret valid
	// during a rotation window. Empty means no rotation in progress.
	JWTSecretPrevious string `koanf:"jwt_secret_previous"`

	// Object storage (S3-compatible)
	StorageBucket          string `koanf:"storage_bucket"`
	StorageRegion          string `koanf:"storage_region"`
	StorageAccessKeyID     string `koanf:"storage_access_key_id"`
	StorageSecretAccessKey string `koanf:"storage_secret_access_key"`
	StorageMaxUploadSizeMB int    `koanf:"storage_max_upload_size_mb"` // Default: 15MB

	// Ledger (EVM chain)
	LedgerRPCURL   string `koanf:"ledger_rpc_url"`
	LedgerChainID  int64  `koanf:"ledger_chain_id"`
	LedgerContract string `koanf:"ledger_contract"`
	// LedgerPrivateKey signs notarization and purchase transactions. Empty
	// yields a read-only ledger client.
	LedgerPrivateKey string `koanf:"ledger_private_key"`

	// Listing index (DynamoDB)
	IndexTable string `koanf:"index_table"`

	// Training jobs (Lambda)
	TrainingFunction string `koanf:"training_function"`

	// Redis (rate limiting)
	RedisURL string `koanf:"redis_url"`

	// PII scan model (ONNX), optional. Empty falls back to rule-only scanning.
	ScanModelPath string `koanf:"scan_model_path"`

	// Feature Flags
	MaskByDefault bool `koanf:"mask_by_default"` // Seal the masked variant unless the caller opts out
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL      = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret        = errors.New("JWT_SECRET is required")
	ErrMissingStorageBucket    = errors.New("STORAGE_BUCKET is required")
	ErrMissingStorageRegion    = errors.New("STORAGE_REGION is required")
	ErrMissingStorageAccessKey = errors.New("STORAGE_ACCESS_KEY_ID is required")
	ErrMissingStorageSecretKey = errors.New("STORAGE_SECRET_ACCESS_KEY is required")
	ErrMissingLedgerRPCURL     = errors.New("LEDGER_RPC_URL is required")
	ErrInvalidLedgerRPCURL     = errors.New("LEDGER_RPC_URL is not a valid RPC endpoint URL")
	ErrMissingLedgerContract   = errors.New("LEDGER_CONTRACT is required")
	ErrInvalidLedgerChainID    = errors.New("LEDGER_CHAIN_ID must be a valid integer")
	ErrMissingIndexTable       = errors.New("INDEX_TABLE is required")
	ErrInvalidPort             = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                   = 8080
	DefaultEnv                    = "development"
	DefaultStorageMaxUploadSizeMB = 15
	DefaultLedgerChainID          = 11155111 // Sepolia
	DefaultIndexTable             = "OmniVault_Users"
	DefaultMaskByDefault          = true
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Parse port from env, collecting error if invalid
	// Try OMNIVAULT_PORT first, then PORT for backward compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"OMNIVAULT_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	// Parse max upload size from env with default
	maxUploadSize, uploadSizeErr := getEnvIntOrDefault("STORAGE_MAX_UPLOAD_SIZE_MB", k.Int("storage_max_upload_size_mb"), DefaultStorageMaxUploadSizeMB)
	if uploadSizeErr != nil {
		loadErrs = append(loadErrs, uploadSizeErr)
	}

	// Parse chain ID from env with default
	chainID := int64(DefaultLedgerChainID)
	if k.Exists("ledger_chain_id") {
		chainID = k.Int64("ledger_chain_id")
	}
	if val := os.Getenv("LEDGER_CHAIN_ID"); val != "" {
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			loadErrs = append(loadErrs, fmt.Errorf("LEDGER_CHAIN_ID must be a valid integer: %w", ErrInvalidLedgerChainID))
		} else {
			chainID = id
		}
	}

	// Parse masking feature flag from env with default
	maskByDefault := DefaultMaskByDefault
	if k.Exists("mask_by_default") {
		maskByDefault = k.Bool("mask_by_default")
	}
	if val := os.Getenv("MASK_BY_DEFAULT"); val != "" {
		// Env var takes precedence over file config
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			maskByDefault = true
		case "false", "0", "no", "off":
			maskByDefault = false
		}
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                   port,
		Env:                    getEnvOrDefaultMulti([]string{"OMNIVAULT_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:            getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		JWTSecret:              getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTSecretPrevious:      getEnvOrKoanf("JWT_SECRET_PREVIOUS", k, "jwt_secret_previous"),
		StorageBucket:          getEnvOrKoanf("STORAGE_BUCKET", k, "storage_bucket"),
		StorageRegion:          getEnvOrKoanf("STORAGE_REGION", k, "storage_region"),
		StorageAccessKeyID:     getEnvOrKoanf("STORAGE_ACCESS_KEY_ID", k, "storage_access_key_id"),
		StorageSecretAccessKey: getEnvOrKoanf("STORAGE_SECRET_ACCESS_KEY", k, "storage_secret_access_key"),
		StorageMaxUploadSizeMB: maxUploadSize,
		LedgerRPCURL:           getEnvOrKoanf("LEDGER_RPC_URL", k, "ledger_rpc_url"),
		LedgerChainID:          chainID,
		LedgerContract:         getEnvOrKoanf("LEDGER_CONTRACT", k, "ledger_contract"),
		LedgerPrivateKey:       getEnvOrKoanf("LEDGER_PRIVATE_KEY", k, "ledger_private_key"),
		IndexTable:             getEnvOrDefault("INDEX_TABLE", k.String("index_table"), DefaultIndexTable),
		TrainingFunction:       getEnvOrKoanf("TRAINING_FUNCTION", k, "training_function"),
		RedisURL:               getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		ScanModelPath:          getEnvOrKoanf("SCAN_MODEL_PATH", k, "scan_model_path"),
		MaskByDefault:          maskByDefault,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// GetJWTSecrets returns the current and previous JWT signing secrets.
// Previous is empty unless a rotation window is open.
func (c *Config) GetJWTSecrets() (current, previous string) {
	return c.JWTSecret, c.JWTSecretPrevious
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.StorageBucket == "" {
		errs = append(errs, ErrMissingStorageBucket)
	}
	if c.StorageRegion == "" {
		errs = append(errs, ErrMissingStorageRegion)
	}
	if c.StorageAccessKeyID == "" {
		errs = append(errs, ErrMissingStorageAccessKey)
	}
	if c.StorageSecretAccessKey == "" {
		errs = append(errs, ErrMissingStorageSecretKey)
	}

	// Ledger configuration is optional. Sealing still works without an RPC
	// endpoint; notarization fails with wallet_unavailable and the receipt
	// stays resumable. If either ledger value is set, both are required.
	if c.LedgerRPCURL != "" || c.LedgerContract != "" {
		if c.LedgerRPCURL == "" {
			errs = append(errs, ErrMissingLedgerRPCURL)
		} else if _, err := validate.RPCEndpointURL(c.LedgerRPCURL); err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidLedgerRPCURL, err))
		}
		if c.LedgerContract == "" {
			errs = append(errs, ErrMissingLedgerContract)
		}
	}

	if c.IndexTable == "" {
		errs = append(errs, ErrMissingIndexTable)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                       fmt.Sprintf("%d", c.Port),
		"env":                        c.Env,
		"database_url":               maskDatabaseURL(c.DatabaseURL),
		"jwt_secret":                 maskSecret(c.JWTSecret),
		"jwt_secret_previous":        maskSecret(c.JWTSecretPrevious),
		"storage_bucket":             c.StorageBucket,
		"storage_region":             c.StorageRegion,
		"storage_access_key_id":      maskSecret(c.StorageAccessKeyID),
		"storage_secret_access_key":  maskSecret(c.StorageSecretAccessKey),
		"storage_max_upload_size_mb": fmt.Sprintf("%d", c.StorageMaxUploadSizeMB),
		"ledger_rpc_url":             maskLedgerURL(c.LedgerRPCURL),
		"ledger_chain_id":            fmt.Sprintf("%d", c.LedgerChainID),
		"ledger_contract":            c.LedgerContract,
		"ledger_private_key":         maskSecret(c.LedgerPrivateKey),
		"index_table":                c.IndexTable,
		"training_function":          c.TrainingFunction,
		"redis_url":                  maskDatabaseURL(c.RedisURL),
		"scan_model_path":            c.ScanModelPath,
		"mask_by_default":            fmt.Sprintf("%t", c.MaskByDefault),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskLedgerURL masks the path component of an RPC URL. Hosted RPC providers
// embed the API key in the URL path (e.g. infura.io/v3/<key>).
func maskLedgerURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	slashIndex := strings.Index(rest, "/")
	if slashIndex == -1 {
		return s // Host only, nothing to mask
	}

	return s[:schemeEnd+3] + rest[:slashIndex] + "/****"
}

// maskDatabaseURL masks the password in a database URL.
// Works for postgres:// and redis:// style URLs alike.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
