package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sphere/client"
	"sphere/logger"
	"sphere/mining"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "backend base URL")
	token := flag.String("token", os.Getenv("SPHERE_TOKEN"), "bearer token")
	user := flag.String("user", "local", "user id used for the cache key")
	hashrate := flag.Float64("hashrate", 0, "starting hashrate, 0 picks a server default")
	offline := flag.Bool("offline", false, "start an offline-mode session")
	cacheDir := flag.String("cache", "", "snapshot cache dir (default: user cache dir)")
	flag.Parse()

	_ = logger.Init(logger.Settings{Format: "text", Level: os.Getenv("LOG_LEVEL")})

	if *token == "" {
		logger.Fatalf("a bearer token is required (-token or SPHERE_TOKEN)")
	}

	dir := *cacheDir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		dir = filepath.Join(base, "sphere-miner")
	}
	var cache client.Cache
	if fc, err := client.NewFileCache(dir); err == nil {
		cache = fc
	} else {
		logger.WithError(err).Warnf("cache dir unavailable, snapshots will not survive restarts")
		cache = client.NewMemoryCache()
	}

	api := client.NewAPI(*baseURL, *token)
	syncer := client.NewSyncer(*user, api, cache)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err := syncer.Mount(ctx, mining.StartConfig{Hashrate: *hashrate}, *offline)
	cancel()
	if err != nil {
		logger.WithError(err).Fatalf("failed to start mining session")
	}
	logger.WithFields(logger.Fields{"session_id": syncer.Snapshot().SessionID}).Infof("mining session running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("stopping")
	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := syncer.Stop(ctx); err != nil {
		logger.WithError(err).Errorf("stop failed")
		os.Exit(1)
	}
	snap := syncer.Snapshot()
	logger.WithFields(logger.Fields{
		"shares_accepted": snap.SharesAccepted,
		"rewards":         snap.Rewards,
	}).Infof("session closed")
}
