package params

import (
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Ledger struct {
	FeeAccount common.Address
	FeePercent int64 // integer percent of amountGet charged to the filler
	DBPath     string
}

type API struct {
	Addr string
}

type Node struct {
	LogFile string
	// SeedTokens deploys the dev token set (DAPP, mETH, mDAI) at startup
	// with supply minted to the deployer address. Devnet convenience only.
	SeedTokens bool
	Deployer   common.Address
}

type Config struct {
	Ledger Ledger
	API    API
	Node   Node
}

func Default() Config {
	return Config{
		Ledger: Ledger{
			FeeAccount: common.HexToAddress("0xFEE0000000000000000000000000000000000000"),
			FeePercent: 10,
			DBPath:     "data/ledger.db",
		},
		API: API{
			Addr: ":8080",
		},
		Node: Node{
			LogFile:    "data/ledgerd.log",
			SeedTokens: true,
			Deployer:   common.HexToAddress("0xDE01000000000000000000000000000000000000"),
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("FEE_ACCOUNT"); v != "" {
		cfg.Ledger.FeeAccount = common.HexToAddress(v)
	}
	if v := os.Getenv("FEE_PERCENT"); v != "" {
		if pct, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Ledger.FeePercent = pct
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Ledger.DBPath = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("SEED_TOKENS"); v != "" {
		cfg.Node.SeedTokens = v == "true"
	}
	if v := os.Getenv("DEPLOYER"); v != "" {
		cfg.Node.Deployer = common.HexToAddress(v)
	}

	return cfg
}
