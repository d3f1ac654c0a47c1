package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/recordsdesk/custody/pkg/custody"
	"github.com/recordsdesk/custody/pkg/custody/config"
)

// verify replays every custody ledger against the registry and reports
// objects whose projection drifted. Exit code 1 means drift was found.
func main() {
	concurrency := flag.Int("concurrency", 8, "number of objects verified in parallel")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	serverConfig, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(2)
	}

	ctx := context.Background()
	svc, err := serverConfig.BuildService(ctx, nil, custody.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build custody service", "err", err)
		os.Exit(2)
	}

	codes, err := svc.ListObjectCodes(ctx)
	if err != nil {
		logger.Error("failed to list object codes", "err", err)
		os.Exit(2)
	}
	logger.Info("verifying custody ledgers", "objects", len(codes), "concurrency", *concurrency)

	var mu sync.Mutex
	var drifted []*custody.ConsistencyReport

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)
	for _, code := range codes {
		code := code
		g.Go(func() error {
			report, err := svc.VerifyConsistency(gctx, code)
			if err != nil {
				return fmt.Errorf("verify %s: %w", code, err)
			}
			if !report.Consistent {
				mu.Lock()
				drifted = append(drifted, report)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("verification aborted", "err", err)
		os.Exit(2)
	}

	if len(drifted) == 0 {
		logger.Info("all ledgers consistent", "objects", len(codes))
		return
	}

	for _, report := range drifted {
		logger.Error("projection drift detected",
			"object_code", report.ObjectCode,
			"registry_status", report.Registry.Status,
			"replayed_status", report.Replayed.Status,
			"registry_version", report.Registry.Version,
			"replayed_events", report.Replayed.EventCount)
	}
	fmt.Fprintf(os.Stderr, "%d of %d objects inconsistent\n", len(drifted), len(codes))
	os.Exit(1)
}
