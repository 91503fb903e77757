package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"aaudSwap/internal/model"
)

const (
	ChainMainnet uint64 = 1
	ChainSepolia uint64 = 11155111
)

var chainNames = map[uint64]string{
	ChainMainnet: "mainnet",
	ChainSepolia: "sepolia",
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string
	ChainID      uint64
	SwapContract common.Address
	// Stablecoin is read from the swap contract when zero.
	Stablecoin   common.Address
	Tokens       []model.Token
	PrivateKey   string
	Owner        string
	MaxRetries   int
	RetryBackoff time.Duration
	PollInterval time.Duration
	GasLimit     uint64
	MetricsAddr  string
	Journal      string
	LogLevel     string
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := loadDotEnv(flags); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("SWAPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", ChainSepolia)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("poll-interval", 4*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	swapContract, err := getAddress(v, "swap-contract")
	if err != nil {
		return Config{}, err
	}
	stablecoin, err := getAddress(v, "stablecoin")
	if err != nil {
		return Config{}, err
	}
	tokens, err := getTokens(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:       v.GetString("rpc"),
		ChainID:      v.GetUint64("chain-id"),
		SwapContract: swapContract,
		Stablecoin:   stablecoin,
		Tokens:       tokens,
		PrivateKey:   v.GetString("private-key"),
		Owner:        v.GetString("owner"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		PollInterval: v.GetDuration("poll-interval"),
		GasLimit:     v.GetUint64("gas-limit"),
		MetricsAddr:  v.GetString("metrics-addr"),
		Journal:      v.GetString("journal"),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the values every command needs.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("rpc is required")
	}
	if _, ok := chainNames[c.ChainID]; !ok {
		return fmt.Errorf("unsupported chain id %d", c.ChainID)
	}
	if c.SwapContract == (common.Address{}) {
		return errors.New("swap-contract is required")
	}
	if len(c.Tokens) == 0 {
		return errors.New("token list is empty")
	}
	if c.PrivateKey != "" && c.Owner != "" {
		return errors.New("private-key and owner are mutually exclusive")
	}
	if c.Owner != "" && !common.IsHexAddress(c.Owner) {
		return fmt.Errorf("invalid owner address %q", c.Owner)
	}
	return nil
}

// ChainName returns the network name for a supported chain id.
func ChainName(id uint64) string {
	if name, ok := chainNames[id]; ok {
		return name
	}
	return fmt.Sprintf("chain-%d", id)
}

func loadDotEnv(flags *pflag.FlagSet) error {
	path := ".env"
	if flags != nil {
		if flag := flags.Lookup("env-file"); flag != nil && flag.Value.String() != "" {
			path = flag.Value.String()
		}
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func getAddress(v *viper.Viper, key string) (common.Address, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", key, raw)
	}
	return common.HexToAddress(raw), nil
}

// getTokens reads "token-list" or "tokens" as a SYMBOL=address:Name comma
// list, or "tokens" as a list of maps from a config file. Without either,
// the mock token addresses form the default list.
func getTokens(v *viper.Viper) ([]model.Token, error) {
	var tokens []model.Token
	if entries := getStringSlice(v, "token-list"); len(entries) > 0 {
		for _, item := range entries {
			token, err := parseTokenEntry(item)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
		}
	} else if v.IsSet("tokens") {
		switch typed := v.Get("tokens").(type) {
		case []interface{}:
			for _, item := range typed {
				entry, ok := item.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("invalid token entry %v", item)
				}
				token, err := newToken(
					stringValue(entry["symbol"]),
					stringValue(entry["address"]),
					stringValue(entry["name"]),
				)
				if err != nil {
					return nil, err
				}
				tokens = append(tokens, token)
			}
		default:
			for _, item := range getStringSlice(v, "tokens") {
				token, err := parseTokenEntry(item)
				if err != nil {
					return nil, err
				}
				tokens = append(tokens, token)
			}
		}
	} else {
		for _, def := range defaultTokens {
			addr := strings.TrimSpace(v.GetString(def.key))
			if addr == "" {
				continue
			}
			token, err := newToken(def.symbol, addr, def.name)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
		}
	}

	seen := make(map[common.Address]bool, len(tokens))
	for _, token := range tokens {
		if seen[token.Address] {
			return nil, fmt.Errorf("duplicate token %s", token.Address.Hex())
		}
		seen[token.Address] = true
	}
	return tokens, nil
}

var defaultTokens = []struct {
	key    string
	symbol string
	name   string
}{
	{key: "mock-usdc", symbol: "USDC", name: "Mock USDC"},
	{key: "mock-usdt", symbol: "USDT", name: "Mock USDT"},
	{key: "mock-dai", symbol: "DAI", name: "Mock DAI"},
}

func parseTokenEntry(entry string) (model.Token, error) {
	symbol, rest, ok := strings.Cut(entry, "=")
	if !ok {
		return model.Token{}, fmt.Errorf("invalid token %q: want SYMBOL=address[:Name]", entry)
	}
	addr, name, _ := strings.Cut(rest, ":")
	return newToken(symbol, addr, name)
}

func newToken(symbol, addr, name string) (model.Token, error) {
	symbol = strings.TrimSpace(symbol)
	addr = strings.TrimSpace(addr)
	name = strings.TrimSpace(name)
	if symbol == "" {
		return model.Token{}, fmt.Errorf("token %s has no symbol", addr)
	}
	if !common.IsHexAddress(addr) {
		return model.Token{}, fmt.Errorf("invalid address %q for token %s", addr, symbol)
	}
	if name == "" {
		name = symbol
	}
	return model.Token{Address: common.HexToAddress(addr), Name: name, Symbol: symbol}, nil
}

func stringValue(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
