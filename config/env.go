package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCEndpoint    = "FLASHARB_RPC_ENDPOINT"
	EnvVault          = "FLASHARB_VAULT"
	EnvExecutor       = "FLASHARB_EXECUTOR"
	EnvOwner          = "FLASHARB_OWNER"
	EnvMinProfitUSD   = "FLASHARB_MIN_PROFIT_USD"
	EnvMaxSlippageBps = "FLASHARB_MAX_SLIPPAGE_BPS"
)

// LoadEnv loads environment variables from the given .env files (default ".env").
// A missing file is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}
