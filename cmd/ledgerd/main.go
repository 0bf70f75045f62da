package main

import (
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smkim/dexledger/params"
	"github.com/smkim/dexledger/pkg/api"
	"github.com/smkim/dexledger/pkg/ledger"
	"github.com/smkim/dexledger/pkg/token"
	"github.com/smkim/dexledger/pkg/util"
)

// custodyAccount is the identity holding deposited funds inside the token
// registry, playing the exchange contract's own address.
var custodyAccount = common.HexToAddress("0xEC00000000000000000000000000000000000000")

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Token custody collaborator ----
	registry := token.NewRegistry(custodyAccount)
	if cfg.Node.SeedTokens {
		seedTokens(registry, cfg.Node.Deployer)
		for _, t := range registry.List() {
			sugar.Infow("token_deployed", "symbol", t.Symbol, "address", t.Address.Hex())
		}
	}

	// ---- Exchange ledger ----
	store, err := ledger.OpenStore(cfg.Ledger.DBPath)
	if err != nil {
		sugar.Fatalw("open_store_failed", "path", cfg.Ledger.DBPath, "err", err)
	}
	defer store.Close()

	ld, err := ledger.New(store, registry, cfg.Ledger.FeeAccount, cfg.Ledger.FeePercent, logger)
	if err != nil {
		sugar.Fatalw("ledger_init_failed", "err", err)
	}

	// ---- API ----
	server := api.NewServer(ld, registry, logger)
	go func() {
		if err := server.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	sugar.Infow("shutting_down", "signal", sig.String())
}

// seedTokens deploys the devnet token set with 1,000,000 units of supply
// each, minted to the deployer.
func seedTokens(r *token.Registry, deployer common.Address) {
	supply := new(big.Int).Mul(big.NewInt(1_000_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	r.Deploy("Dapp University", "DAPP", supply, deployer)
	r.Deploy("Mock Ether", "mETH", supply, deployer)
	r.Deploy("Mock Dai", "mDAI", supply, deployer)
}
