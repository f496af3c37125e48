package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/scrollfeed/internal/config"
	"github.com/Sternrassler/scrollfeed/internal/ui"
	"github.com/Sternrassler/scrollfeed/pkg/logging"
	"github.com/Sternrassler/scrollfeed/pkg/session"
	"github.com/Sternrassler/scrollfeed/pkg/source"
	"github.com/redis/go-redis/v9"
)

func main() {
	envFile := flag.String("env", "", "Path to an env file (default: .env if present)")
	address := flag.String("address", "", "Start address, e.g. /users?page=2 (default: FEED_START_ADDRESS)")
	logFile := flag.String("log-file", "", "Write logs to this file (logging is off otherwise)")
	flag.Parse()

	if err := run(*envFile, *address, *logFile); err != nil {
		fmt.Fprintf(os.Stderr, "feedview: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile, address, logFile string) error {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs go to a file or nowhere.
	var logOutput io.Writer = io.Discard
	logCfg := cfg.Logging(logOutput)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logCfg.Output = f
		logCfg.Pretty = false
	} else {
		logCfg.Level = logging.LevelDisabled
	}
	logCfg.Service = "feedview"
	logging.Setup(logCfg)

	srcCfg := cfg.Source()
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return err
	}
	if redisOpts != nil {
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		srcCfg.Redis = redisClient
	}

	client, err := source.New(srcCfg)
	if err != nil {
		return fmt.Errorf("create page source: %w", err)
	}
	defer client.Close()

	if address == "" {
		address = cfg.StartAddress
	}

	return ui.Run(session.New(client, address))
}
