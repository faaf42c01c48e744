package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Network        NetworkConfig        `yaml:"network" json:"network"`
	RPCRateLimit   RateLimitConfig      `yaml:"rpc_rate_limit" json:"rpc_rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`

	Tokens   []TokenConfig `yaml:"tokens" json:"tokens"`
	Venues   []VenueConfig `yaml:"venues" json:"venues"`
	FeeTiers []uint32      `yaml:"fee_tiers" json:"fee_tiers"`
	Pairs    []PairConfig  `yaml:"pairs" json:"pairs"`

	Flashloan FlashloanConfig `yaml:"flashloan" json:"flashloan"`
	Strategy  StrategyConfig  `yaml:"strategy" json:"strategy"`
	Gas       GasConfig       `yaml:"gas" json:"gas"`
	Polling   PollingConfig   `yaml:"polling" json:"polling"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Journal   JournalConfig   `yaml:"journal" json:"journal"`
}

type NetworkConfig struct {
	RPCEndpoint    string        `yaml:"rpc_endpoint" json:"rpc_endpoint"`
	ChainID        uint64        `yaml:"chain_id" json:"chain_id"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	WaitTimeout       time.Duration `yaml:"wait_timeout" json:"wait_timeout"`
}

type CircuitBreakerConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	ErrorThreshold int           `yaml:"error_threshold" json:"error_threshold"`
	ResetInterval  time.Duration `yaml:"reset_interval" json:"reset_interval"`
	CooldownPeriod time.Duration `yaml:"cooldown_period" json:"cooldown_period"`
}

// TokenConfig describes a token the bot may quote or borrow
type TokenConfig struct {
	Symbol   string  `yaml:"symbol" json:"symbol"`
	Address  string  `yaml:"address" json:"address"`
	Decimals uint8   `yaml:"decimals" json:"decimals"`
	PriceUSD float64 `yaml:"price_usd" json:"price_usd"` // reference price used for settlement
}

// VenueConfig describes a concentrated-liquidity DEX deployment
type VenueConfig struct {
	Name    string `yaml:"name" json:"name"`
	Factory string `yaml:"factory" json:"factory"`
	Router  string `yaml:"router" json:"router"`
	Quoter  string `yaml:"quoter" json:"quoter"`
}

// PairConfig names a monitored pair by token symbol
type PairConfig struct {
	TokenA string `yaml:"token_a" json:"token_a"`
	TokenB string `yaml:"token_b" json:"token_b"`
}

type FlashloanConfig struct {
	LendingPool string `yaml:"lending_pool" json:"lending_pool"`
	Executor    string `yaml:"executor" json:"executor"`
	Owner       string `yaml:"owner" json:"owner"`
	Vault       string `yaml:"vault" json:"vault"`
	PremiumBps  uint64 `yaml:"premium_bps" json:"premium_bps"`
}

type StrategyConfig struct {
	MaxFlashloanPercent  uint64  `yaml:"max_flashloan_percent" json:"max_flashloan_percent"`
	MaxSlippageBps       uint64  `yaml:"max_slippage_bps" json:"max_slippage_bps"`
	MinProfitUSD         float64 `yaml:"min_profit_usd" json:"min_profit_usd"`
	MinProfitBps         float64 `yaml:"min_profit_bps" json:"min_profit_bps"`
	ProfitSafetyFraction float64 `yaml:"profit_safety_fraction" json:"profit_safety_fraction"`
	SizingMode           string  `yaml:"sizing_mode" json:"sizing_mode"`
}

// GasConfig prices the arbitrage transaction. Units of 0 uses the two-hop flashloan
// estimate.
type GasConfig struct {
	Units          uint64  `yaml:"units" json:"units"`
	PriceGwei      float64 `yaml:"price_gwei" json:"price_gwei"`
	NativePriceUSD float64 `yaml:"native_price_usd" json:"native_price_usd"`
	UseLivePrice   bool    `yaml:"use_live_price" json:"use_live_price"`
}

type PollingConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

type JournalConfig struct {
	Path string `yaml:"path" json:"path"`
}

const (
	SizingModeFraction = "fraction"
	SizingModeSearch   = "search"
)

func (c *Config) ValidateConfig() error {
	var errors []string

	if c.Network.RPCEndpoint == "" {
		errors = append(errors, "network.rpc_endpoint must be specified")
	}
	if c.Network.RequestTimeout <= 0 {
		errors = append(errors, "network.request_timeout must be positive")
	}

	if err := c.RPCRateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("RPC rate limit error: %v", err))
	}
	if err := c.CircuitBreaker.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("circuit breaker error: %v", err))
	}

	symbols := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Symbol == "" {
			errors = append(errors, "token symbol must be specified")
			continue
		}
		if !common.IsHexAddress(t.Address) {
			errors = append(errors, fmt.Sprintf("token %s: invalid address %q", t.Symbol, t.Address))
		}
		if t.PriceUSD <= 0 {
			errors = append(errors, fmt.Sprintf("token %s: price_usd must be positive", t.Symbol))
		}
		symbols[t.Symbol] = true
	}

	if len(c.Venues) == 0 {
		errors = append(errors, "at least one venue must be configured")
	}
	for _, v := range c.Venues {
		if v.Name == "" {
			errors = append(errors, "venue name must be specified")
		}
		if !common.IsHexAddress(v.Factory) {
			errors = append(errors, fmt.Sprintf("venue %s: invalid factory %q", v.Name, v.Factory))
		}
		if !common.IsHexAddress(v.Router) {
			errors = append(errors, fmt.Sprintf("venue %s: invalid router %q", v.Name, v.Router))
		}
	}

	if len(c.FeeTiers) == 0 {
		errors = append(errors, "at least one fee tier must be configured")
	}

	if len(c.Pairs) == 0 {
		errors = append(errors, "at least one pair must be configured")
	}
	for _, p := range c.Pairs {
		if p.TokenA == p.TokenB {
			errors = append(errors, fmt.Sprintf("pair %s/%s: tokens must differ", p.TokenA, p.TokenB))
		}
		if !symbols[p.TokenA] || !symbols[p.TokenB] {
			errors = append(errors, fmt.Sprintf("pair %s/%s: unknown token", p.TokenA, p.TokenB))
		}
	}

	if !common.IsHexAddress(c.Flashloan.LendingPool) {
		errors = append(errors, "flashloan.lending_pool must be a valid address")
	}
	if !common.IsHexAddress(c.Flashloan.Vault) || c.VaultAddress() == (common.Address{}) {
		errors = append(errors, "flashloan.vault must be a non-zero address")
	}
	if c.Flashloan.Executor != "" && !common.IsHexAddress(c.Flashloan.Executor) {
		errors = append(errors, "flashloan.executor must be a valid address")
	}
	if c.Flashloan.Owner != "" && !common.IsHexAddress(c.Flashloan.Owner) {
		errors = append(errors, "flashloan.owner must be a valid address")
	}

	s := c.Strategy
	if s.MaxFlashloanPercent == 0 || s.MaxFlashloanPercent > 100 {
		errors = append(errors, "strategy.max_flashloan_percent must be in (0, 100]")
	}
	if s.MaxSlippageBps == 0 {
		errors = append(errors, "strategy.max_slippage_bps must be positive")
	}
	if s.MinProfitUSD < 0 {
		errors = append(errors, "strategy.min_profit_usd must not be negative")
	}
	if s.MinProfitBps < 0 {
		errors = append(errors, "strategy.min_profit_bps must not be negative")
	}
	if s.ProfitSafetyFraction <= 0 || s.ProfitSafetyFraction > 1 {
		errors = append(errors, "strategy.profit_safety_fraction must be in (0, 1]")
	}
	if s.SizingMode != SizingModeFraction && s.SizingMode != SizingModeSearch {
		errors = append(errors, fmt.Sprintf("strategy.sizing_mode %q is not supported", s.SizingMode))
	}

	if c.Gas.PriceGwei <= 0 {
		errors = append(errors, "gas.price_gwei must be positive")
	}
	if c.Gas.NativePriceUSD <= 0 {
		errors = append(errors, "gas.native_price_usd must be positive")
	}

	if c.Polling.Interval <= 0 {
		errors = append(errors, "polling.interval must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errors = append(errors, "metrics.listen_addr must be specified when metrics are enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (c *CircuitBreakerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.ErrorThreshold <= 0 {
		return fmt.Errorf("error threshold must be positive")
	}
	if c.ResetInterval <= 0 {
		return fmt.Errorf("reset interval must be positive")
	}
	if c.CooldownPeriod <= 0 {
		return fmt.Errorf("cooldown period must be positive")
	}

	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	if r.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive")
	}

	return nil
}

// Token looks up a configured token by symbol
func (c *Config) Token(symbol string) (TokenConfig, bool) {
	for _, t := range c.Tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return TokenConfig{}, false
}

// TokenDecimals returns the configured decimals keyed by token address
func (c *Config) TokenDecimals() map[common.Address]uint8 {
	out := make(map[common.Address]uint8, len(c.Tokens))
	for _, t := range c.Tokens {
		out[common.HexToAddress(t.Address)] = t.Decimals
	}
	return out
}

// TokenPrices returns the configured USD reference prices keyed by token address
func (c *Config) TokenPrices() map[common.Address]float64 {
	out := make(map[common.Address]float64, len(c.Tokens))
	for _, t := range c.Tokens {
		out[common.HexToAddress(t.Address)] = t.PriceUSD
	}
	return out
}

// VenueRouters returns the router address of every venue keyed by venue name
func (c *Config) VenueRouters() map[string]common.Address {
	out := make(map[string]common.Address, len(c.Venues))
	for _, v := range c.Venues {
		out[v.Name] = common.HexToAddress(v.Router)
	}
	return out
}

func (c *Config) VaultAddress() common.Address {
	return common.HexToAddress(c.Flashloan.Vault)
}

func (c *Config) LendingPoolAddress() common.Address {
	return common.HexToAddress(c.Flashloan.LendingPool)
}

func (c *Config) ExecutorAddress() common.Address {
	return common.HexToAddress(c.Flashloan.Executor)
}

// OwnerAddress is the executor owner, the sender of preflight calls
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Flashloan.Owner)
}

// PreflightEnabled reports whether executor calls can be dry-run before hand-off
func (c *Config) PreflightEnabled() bool {
	return c.Flashloan.Executor != "" && c.Flashloan.Owner != ""
}

// LoadConfig builds the configuration from defaults, the optional file at cfgFile and
// environment overrides, then validates it
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	if cfgFile != "" {
		if err := cfg.loadFile(cfgFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(cfgFile string) error {
	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(cfgFile)) {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to decode config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	return nil
}

func (c *Config) applyEnv() error {
	c.Network.RPCEndpoint = GetEnvWithDefault(EnvRPCEndpoint, c.Network.RPCEndpoint)
	c.Flashloan.Vault = GetEnvWithDefault(EnvVault, c.Flashloan.Vault)
	c.Flashloan.Executor = GetEnvWithDefault(EnvExecutor, c.Flashloan.Executor)
	c.Flashloan.Owner = GetEnvWithDefault(EnvOwner, c.Flashloan.Owner)

	if v := os.Getenv(EnvMinProfitUSD); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMinProfitUSD, err)
		}
		c.Strategy.MinProfitUSD = f
	}
	if v := os.Getenv(EnvMaxSlippageBps); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxSlippageBps, err)
		}
		c.Strategy.MaxSlippageBps = n
	}

	return nil
}

// SaveConfig writes the configuration as YAML
func SaveConfig(cfg *Config, cfgFile string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(cfgFile, data, 0o644)
}

// DefaultConfig returns an Ethereum mainnet setup watching WETH/USDC on Uniswap V3
// and borrowing from the Aave V3 pool
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			RPCEndpoint:    "http://localhost:8545",
			ChainID:        1,
			RequestTimeout: 5 * time.Second,
		},
		RPCRateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         100,
			WaitTimeout:       time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        true,
			ErrorThreshold: 10,
			ResetInterval:  time.Minute,
			CooldownPeriod: 30 * time.Second,
		},
		Tokens: []TokenConfig{
			{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18, PriceUSD: 3000},
			{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, PriceUSD: 1},
		},
		Venues: []VenueConfig{
			{
				Name:    "uniswap-v3",
				Factory: "0x1F98431c8aD98523631AE4a59f267346ea31F984",
				Router:  "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45",
				Quoter:  "0x61fFE014bA17989E743c5F6cB21bF9697530B21e",
			},
		},
		FeeTiers: []uint32{100, 500, 3000, 10000},
		Pairs: []PairConfig{
			{TokenA: "WETH", TokenB: "USDC"},
		},
		Flashloan: FlashloanConfig{
			LendingPool: "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
			PremiumBps:  5,
		},
		Strategy: StrategyConfig{
			MaxFlashloanPercent:  10,
			MaxSlippageBps:       50,
			MinProfitUSD:         10,
			MinProfitBps:         5,
			ProfitSafetyFraction: 0.5,
			SizingMode:           SizingModeSearch,
		},
		Gas: GasConfig{
			PriceGwei:      20,
			NativePriceUSD: 3000,
		},
		Polling: PollingConfig{
			Interval: 12 * time.Second,
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
	}
}
