package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"

	"aaudSwap/internal/model"
)

const (
	swapHex = "0x4444444444444444444444444444444444444444"
	usdcHex = "0x1111111111111111111111111111111111111111"
	daiHex  = "0x2222222222222222222222222222222222222222"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.String("swap-contract", "", "")
	flags.String("token-list", "", "")
	flags.Uint64("chain-id", ChainSepolia, "")
	flags.String("env-file", "", "")
	flags.Duration("poll-interval", 4*time.Second, "")
	return flags
}

func TestLoadFromFlags(t *testing.T) {
	flags := newFlags()
	err := flags.Parse([]string{
		"--rpc", "http://localhost:8545",
		"--swap-contract", swapHex,
		"--token-list", "USDC=" + usdcHex + ":Mock USDC, DAI=" + daiHex,
		"--poll-interval", "1s",
	})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.SwapContract != common.HexToAddress(swapHex) {
		t.Fatalf("unexpected swap contract: %s", cfg.SwapContract.Hex())
	}
	if cfg.ChainID != ChainSepolia {
		t.Fatalf("unexpected chain id: %d", cfg.ChainID)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval)
	}
	if len(cfg.Tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(cfg.Tokens))
	}
	if cfg.Tokens[0].Name != "Mock USDC" || cfg.Tokens[1].Name != "DAI" {
		t.Fatalf("unexpected token names: %+v", cfg.Tokens)
	}
	if cfg.MaxRetries != 3 || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `rpc: http://node:8545
chain-id: 1
swap-contract: "` + swapHex + `"
tokens:
  - symbol: USDC
    address: "` + usdcHex + `"
    name: Mock USDC
  - symbol: DAI
    address: "` + daiHex + `"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != ChainMainnet || cfg.RPCURL != "http://node:8545" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Tokens) != 2 || cfg.Tokens[1].Address != common.HexToAddress(daiHex) {
		t.Fatalf("unexpected tokens: %+v", cfg.Tokens)
	}
}

func TestLoadDefaultTokensFromEnv(t *testing.T) {
	t.Setenv("SWAPPER_MOCK_USDC", usdcHex)
	t.Setenv("SWAPPER_MOCK_DAI", daiHex)

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Tokens) != 2 {
		t.Fatalf("expected 2 default tokens, got %+v", cfg.Tokens)
	}
	if cfg.Tokens[0].Symbol != "USDC" || cfg.Tokens[1].Name != "Mock DAI" {
		t.Fatalf("unexpected default tokens: %+v", cfg.Tokens)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "swap.env")
	if err := os.WriteFile(envFile, []byte("SWAPPER_RPC=http://from-env:8545\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SWAPPER_RPC") })

	flags := newFlags()
	if err := flags.Parse([]string{"--env-file", envFile}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "http://from-env:8545" {
		t.Fatalf("unexpected rpc: %q", cfg.RPCURL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := [][]string{
		{"--swap-contract", "not-an-address"},
		{"--token-list", "USDC"},
		{"--token-list", "USDC=0x12"},
		{"--token-list", "USDC=" + usdcHex + ",USDC2=" + usdcHex},
	}
	for _, args := range cases {
		flags := newFlags()
		if err := flags.Parse(args); err != nil {
			t.Fatalf("parse flags: %v", err)
		}
		if _, err := Load("", flags); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		RPCURL:       "http://localhost:8545",
		ChainID:      ChainSepolia,
		SwapContract: common.HexToAddress(swapHex),
	}
	if err := base.Validate(); err == nil {
		t.Fatalf("expected error for empty token list")
	}

	base.Tokens = tokensFromEntry(t, "USDC="+usdcHex)
	if err := base.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	bad := base
	bad.ChainID = 137
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected unsupported chain error")
	}

	bad = base
	bad.PrivateKey = "abc"
	bad.Owner = usdcHex
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected exclusive key/owner error")
	}

	if ChainName(ChainSepolia) != "sepolia" || ChainName(5) != "chain-5" {
		t.Fatalf("unexpected chain names")
	}
}

func tokensFromEntry(t *testing.T, entry string) []model.Token {
	t.Helper()
	token, err := parseTokenEntry(entry)
	if err != nil {
		t.Fatalf("parse token entry: %v", err)
	}
	return []model.Token{token}
}
