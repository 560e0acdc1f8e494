package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	client "github.com/jsp-lqk/metapipe-redis"
)

func main() {
	var (
		config      = pflag.StringP("config", "c", "", "yaml options file")
		addr        = pflag.StringP("addr", "a", "", "redis address, overrides the options file")
		password    = pflag.String("password", "", "AUTH password")
		db          = pflag.Int("db", 0, "database selected after connecting")
		maxWaiting  = pflag.Int("max-waiting", 100, "requests allowed to wait for a reply, 0 for no limit")
		concurrency = pflag.IntP("concurrency", "n", 0, "run a SET/GET load with this many goroutines instead of a single command")
		verbose     = pflag.BoolP("verbose", "v", false, "debug logging")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] [COMMAND [ARG...]]\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logger := newLogger(*verbose)
	defer logger.Sync()

	opts := client.DefaultOptions()
	if *config != "" {
		var err error
		if opts, err = client.LoadOptions(*config); err != nil {
			logger.Fatal("load options", zap.Error(err))
		}
	}
	if *addr != "" {
		opts.Address = *addr
	}
	if pflag.CommandLine.Changed("password") {
		opts.Password = *password
	}
	if pflag.CommandLine.Changed("db") {
		opts.DB = *db
	}
	if pflag.CommandLine.Changed("max-waiting") || *config == "" {
		opts.MaxWaitingHandlers = *maxWaiting
	}
	opts.Logger = logger

	ctx := context.Background()
	conn, err := client.Dial(ctx, opts)
	if err != nil {
		logger.Fatal("connect", zap.Error(err))
	}
	defer conn.Close()
	conn.ExceptionHandler(func(err error) {
		logger.Error("connection failed", zap.Error(err))
	})

	if *concurrency > 0 {
		load(ctx, logger, conn, *concurrency)
		return
	}

	args := pflag.Args()
	if len(args) == 0 {
		args = []string{"PING"}
	}
	cmdArgs := make([]interface{}, len(args)-1)
	for i, a := range args[1:] {
		cmdArgs[i] = a
	}
	v, err := conn.Do(ctx, client.Cmd(client.CommandName(args[0]), cmdArgs...))
	if err != nil && !v.IsError() {
		logger.Fatal("command failed", zap.Error(err))
	}
	fmt.Println(v.String())
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

// load sets and reads back one key per goroutine and reports how many
// requests hit the waiting queue limit
func load(ctx context.Context, logger *zap.Logger, conn *client.Connection, n int) {
	var wg sync.WaitGroup
	var ok, full, failed atomic.Int64
	start := time.Now()

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "cli-key-" + strconv.Itoa(i)
			replies, err := conn.DoBatch(ctx,
				client.Cmd(client.SET, key, fmt.Sprintf("value-%d", i)),
				client.Cmd(client.GET, key))
			switch {
			case err == nil && replies[1].String() == fmt.Sprintf("value-%d", i):
				ok.Add(1)
			case errors.Is(err, client.ErrQueueFull):
				full.Add(1)
			default:
				failed.Add(1)
				logger.Debug("request failed", zap.String("key", key), zap.Error(err))
			}
		}(i)
	}
	wg.Wait()

	logger.Info("load finished",
		zap.Int64("ok", ok.Load()),
		zap.Int64("queue_full", full.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Duration("elapsed", time.Since(start)))
}
