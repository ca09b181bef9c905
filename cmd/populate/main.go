// populate backfills the local ledger from another instance, one day of
// blocks at a time:
//
//	populate -source https://instance.example.com -day 1692635195225
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/config"
	"github.com/d60-Lab/did-node/internal/oracle"
	"github.com/d60-Lab/did-node/internal/repository"
	"github.com/d60-Lab/did-node/internal/service"
	"github.com/d60-Lab/did-node/pkg/database"
	"github.com/d60-Lab/did-node/pkg/logger"
)

func main() {
	fs := flag.NewFlagSet("populate", flag.ExitOnError)
	source := fs.String("source", "", "instance base URL to copy posts from")
	day := fs.Int64("day", 0, "any unix time in milliseconds within the day to backfill")
	_ = fs.Parse(os.Args[1:])
	if *source == "" || *day <= 0 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	posts := repository.NewPostRepository(db)
	blockClient := oracle.NewBlockClient(cfg.Oracle, log)
	blocks := oracle.NewCachedBlocks(repository.NewBlockRepository(db), nil, blockClient, log, nil)
	domains := oracle.NewDomainClient(cfg.Oracle, log)
	validator := service.NewValidator(domains, domains, blocks, posts, log)

	stats, err := service.NewBackfiller(blockClient, validator, posts, nil, log).Run(ctx, *source, *day)
	if err != nil {
		log.Error("backfill aborted", zap.Error(err))
	}
	if stats != nil {
		_ = json.NewEncoder(os.Stdout).Encode(stats)
	}
	if err != nil {
		os.Exit(1)
	}
}
