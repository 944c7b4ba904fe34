package main

import (
	"context"
	"crypto/tls"
	"strings"

	addresscodec "github.com/cosmos/cosmos-sdk/codec/address"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/elys-network/dpool/internal/config"
	"github.com/elys-network/dpool/internal/host"
	"github.com/elys-network/dpool/internal/logger"
	"github.com/elys-network/dpool/internal/metrics"
	"github.com/elys-network/dpool/internal/node"
	"github.com/elys-network/dpool/internal/pool"
	"github.com/elys-network/dpool/internal/querier"
	"github.com/elys-network/dpool/internal/state"
	"github.com/elys-network/dpool/internal/web"
)

// main is the entry point for the deposit pool node.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.InitializeWithFile(config.LogLevel, config.LogFile)
	log.Info().Str("mode", config.NodeMode).Msg("Deposit pool node starting...")

	if err := config.LoadDatabaseConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load database configuration")
	}

	// Execution history is optional
	nodeCfg := node.Config{Mode: config.NodeMode, Metrics: metrics.New()}
	if config.DBEnabled {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: int(config.DBPort),
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		history := state.History{}
		nodeCfg.Receipts = history
		nodeCfg.ConfigHistory = history
	}

	ctx := context.Background()

	// --- 2. Backend Initialization ---
	switch config.NodeMode {
	case config.ModeLive:
		grpcClient := dialGRPC(config.NodeGRPC)
		defer grpcClient.Close()

		chain, err := querier.NewChainClient(grpcClient, config.NodeRPC)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create chain client")
		}
		live, err := host.NewLive(chain, config.PoolContract)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create live host")
		}
		log.Info().Str("pool", config.PoolContract).Msg("Serving deployed pool (read-only)")
		nodeCfg.Backend = live

	case config.ModeSandbox:
		sandbox, err := newSandbox(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start sandbox")
		}
		nodeCfg.Backend = sandbox
	}

	// --- 3. Create Node Instance with Dependency Injection ---
	n, err := node.NewNode(nodeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create node instance")
	}
	n.RecordConfig(ctx)

	// --- 4. Serve ---
	webServer := web.NewWebServer(config.WebPort, n, nodeCfg.Metrics)
	log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting deposit pool API")
	if err := webServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("Web server stopped")
	}
}

func dialGRPC(endpoint string) *grpc.ClientConn {
	var creds grpc.DialOption
	if strings.Contains(endpoint, ":443") {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	grpcClient, err := grpc.NewClient(endpoint, creds)
	if err != nil {
		log.Fatal().Err(err).Msg("gRPC connection error")
	}
	log.Info().Str("endpoint", endpoint).Msg("gRPC connected")
	return grpcClient
}

// newSandbox builds the local chain from the init manifest, funds the genesis accounts and
// deploys the pool.
func newSandbox(ctx context.Context) (*host.Sandbox, error) {
	manifest, err := config.LoadInitManifest(config.InitManifestPath)
	if err != nil {
		return nil, err
	}
	codec := addresscodec.NewBech32Codec(config.Bech32Prefix)

	sandbox, err := host.NewSandbox(host.Config{
		AddressCodec: codec,
		ChainID:      manifest.ChainID,
		StartTime:    manifest.StartTime,
		StableDenom:  manifest.StableDenom,
		Cw20CodeID:   manifest.Cw20CodeID,
		MarketRate:   manifest.MarketRate,
		VirtualRate:  manifest.VirtualRate,
		TaxRate:      config.TaxRate,
		TaxCap:       config.TaxCap,
	})
	if err != nil {
		return nil, err
	}

	if !manifest.MarketLiquidity.Empty() {
		if err := sandbox.Fund(sandbox.MarketAddress(), manifest.MarketLiquidity); err != nil {
			return nil, err
		}
	}
	for _, account := range manifest.Genesis {
		if err := sandbox.Fund(account.Address, account.Coins); err != nil {
			return nil, err
		}
	}

	contract, err := pool.NewContract(pool.Config{
		AddressCodec: codec,
		Querier:      sandbox,
		TaxQuerier:   sandbox,
	})
	if err != nil {
		return nil, err
	}
	poolAddr, err := sandbox.DeployPool(ctx, manifest.Creator, contract, manifest.Pool)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("pool", poolAddr).
		Str("chainId", manifest.ChainID).
		Int("genesisAccounts", len(manifest.Genesis)).
		Msg("Sandbox pool deployed")
	return sandbox, nil
}
