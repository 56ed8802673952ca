package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"usenet-sync/go-core/internal/config"
	"usenet-sync/go-core/internal/daemon"
	"usenet-sync/go-core/internal/rpc"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	rpcAddr := flag.String("rpc-addr", "", "JSON-RPC listen address (default "+config.DefaultRPCAddr+")")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	dataDir := flag.String("data-dir", "", "Directory for daemon local data (optional)")
	rpcToken := flag.String("rpc-token", "", "RPC token for Authorization/X-USN-RPC-Token (optional)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("usenet-sync-daemon version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *dataDir != "" {
		_ = os.Setenv("USN_DATA_DIR", *dataDir)
	}
	if *rpcToken != "" {
		_ = os.Setenv("USN_RPC_TOKEN", *rpcToken)
	}
	if *rpcAddr != "" {
		_ = os.Setenv("USN_RPC_ADDR", *rpcAddr)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("usenet-sync-daemon failed to load config: %v", err)
	}

	svc, stats, err := daemon.Build(cfg)
	if err != nil {
		log.Fatalf("usenet-sync-daemon failed to initialize: %v", err)
	}

	srv := rpc.NewServer(svc, stats, rpc.Options{
		Addr:      cfg.RPCAddr,
		Token:     cfg.RPCToken,
		RateRPS:   cfg.RateLimit.RPS,
		RateBurst: cfg.RateLimit.Burst,
	})

	log.Println("usenet-sync-daemon starting")
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("usenet-sync-daemon failed: %v", err)
	}
	log.Println("usenet-sync-daemon stopped")
}
