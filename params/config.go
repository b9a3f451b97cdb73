package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Signature strategies
const (
	SignatureLocal    = "local"    // ecrecover in process
	SignatureContract = "contract" // exchange.isValidSignature over RPC
)

// State backends
const (
	BackendRPC    = "rpc"    // live exchange and token contracts
	BackendLedger = "ledger" // local simulated exchange
)

type Chain struct {
	RPCURL   string `toml:"rpc_url"`
	ChainID  int64  `toml:"chain_id"`
	Exchange string `toml:"exchange"`
	Proxy    string `toml:"proxy"`
	ZRX      string `toml:"zrx"`
}

type Validation struct {
	Signature string `toml:"signature"`
	Backend   string `toml:"backend"`
}

type Node struct {
	APIAddr     string   `toml:"api_addr"`
	Origins     []string `toml:"origins"`
	DBPath      string   `toml:"db_path"`
	JournalPath string   `toml:"journal_path"` // empty disables the journal
	LogFile     string   `toml:"log_file"`     // empty logs to console only
}

type Relay struct {
	Enabled    bool     `toml:"enabled"`
	ListenAddr string   `toml:"listen_addr"`
	Bootstrap  []string `toml:"bootstrap"`
	Topic      string   `toml:"topic"`
	PoolLimit  int      `toml:"pool_limit"`
}

type Config struct {
	Chain      Chain      `toml:"chain"`
	Validation Validation `toml:"validation"`
	Node       Node       `toml:"node"`
	Relay      Relay      `toml:"relay"`
}

// Default targets a local devnet with the 0x v1 mainnet addresses.
func Default() Config {
	return Config{
		Chain: Chain{
			RPCURL:   "http://localhost:8545",
			ChainID:  1,
			Exchange: "0x12459c951127e0c374ff9105dda097662a027093",
			Proxy:    "0x8da0d80f5007ef1e431dd2127178d224e32c2ef4",
			ZRX:      "0xe41d2489571d322189246dafa5ebde1f4699f498",
		},
		Validation: Validation{
			Signature: SignatureLocal,
			Backend:   BackendLedger,
		},
		Node: Node{
			APIAddr: ":8080",
			DBPath:  "data/fillguard",
		},
		Relay: Relay{
			ListenAddr: "/ip4/0.0.0.0/tcp/4001",
			Topic:      "fillguard-orders/1",
			PoolLimit:  10_000,
		},
	}
}

// LoadFromFile decodes a TOML file over the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > base
func LoadFromEnv(envPath string, base Config) (Config, error) {
	cfg := base

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Chain.RPCURL = getEnv("CHAIN_RPC_URL", cfg.Chain.RPCURL)
	cfg.Chain.Exchange = getEnv("EXCHANGE_ADDRESS", cfg.Chain.Exchange)
	cfg.Chain.Proxy = getEnv("PROXY_ADDRESS", cfg.Chain.Proxy)
	cfg.Chain.ZRX = getEnv("ZRX_ADDRESS", cfg.Chain.ZRX)
	if id := os.Getenv("CHAIN_ID"); id != "" {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("CHAIN_ID: %w", err)
		}
		cfg.Chain.ChainID = n
	}

	cfg.Validation.Signature = getEnv("SIGNATURE_STRATEGY", cfg.Validation.Signature)
	cfg.Validation.Backend = getEnv("STATE_BACKEND", cfg.Validation.Backend)

	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.DBPath = getEnv("DB_PATH", cfg.Node.DBPath)
	cfg.Node.JournalPath = getEnv("JOURNAL_FILE", cfg.Node.JournalPath)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	if origins := os.Getenv("API_ORIGINS"); origins != "" {
		cfg.Node.Origins = splitList(origins)
	}

	if enabled := os.Getenv("RELAY_ENABLED"); enabled != "" {
		cfg.Relay.Enabled = enabled == "true"
	}
	cfg.Relay.ListenAddr = getEnv("RELAY_LISTEN_ADDR", cfg.Relay.ListenAddr)
	cfg.Relay.Topic = getEnv("RELAY_TOPIC", cfg.Relay.Topic)
	// Example: "/ip4/10.0.0.2/tcp/4001/p2p/12D3Koo...,/ip4/..."
	if peers := os.Getenv("RELAY_BOOTSTRAP"); peers != "" {
		cfg.Relay.Bootstrap = splitList(peers)
	}
	if limit := os.Getenv("RELAY_POOL_LIMIT"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return cfg, fmt.Errorf("RELAY_POOL_LIMIT: %w", err)
		}
		cfg.Relay.PoolLimit = n
	}

	return cfg, cfg.Validate()
}

// Validate checks addresses and enumerated settings.
func (c Config) Validate() error {
	for name, addr := range map[string]string{
		"exchange": c.Chain.Exchange,
		"proxy":    c.Chain.Proxy,
		"zrx":      c.Chain.ZRX,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s address %q", name, addr)
		}
	}
	switch c.Validation.Signature {
	case SignatureLocal, SignatureContract:
	default:
		return fmt.Errorf("unknown signature strategy %q", c.Validation.Signature)
	}
	switch c.Validation.Backend {
	case BackendRPC, BackendLedger:
	default:
		return fmt.Errorf("unknown state backend %q", c.Validation.Backend)
	}
	if c.Validation.Signature == SignatureContract && c.Validation.Backend == BackendLedger {
		return fmt.Errorf("contract signature checks need the rpc backend")
	}
	return nil
}

func (c Config) ExchangeAddress() common.Address { return common.HexToAddress(c.Chain.Exchange) }
func (c Config) ProxyAddress() common.Address    { return common.HexToAddress(c.Chain.Proxy) }
func (c Config) ZRXAddress() common.Address      { return common.HexToAddress(c.Chain.ZRX) }

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
