package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fahmaliyi/otpvault/cli"
	"github.com/fahmaliyi/otpvault/config"
	"github.com/fahmaliyi/otpvault/logger"
	"github.com/fahmaliyi/otpvault/worker"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	pool := worker.NewPool(cfg.Workers, log)
	defer pool.Wait()

	opts := cfg.BackendOptions()
	opts.Pool = pool
	opts.Logger = log

	b, err := cli.OpenBackend(ctx, opts, cli.ReadPasswordMasked, os.Stdout)
	if err != nil {
		return err
	}
	defer b.Close()
	log.Info("store unlocked", slog.String("backend", string(b.Kind())), slog.String("path", b.Path()))

	clip := cli.NewClipboard(cfg.ClipboardClear)
	if cfg.UI == "cli" {
		return cli.RunCommands(ctx, b, cli.WithClipboard(clip), cli.WithShellLogger(log))
	}
	return cli.RunTUI(ctx, b, clip, log)
}

// newLogger writes to LOG_FILE when set. Without one, the line shell logs to
// stderr and the TUI discards logs so they cannot tear the screen.
func newLogger(cfg config.Config) (*slog.Logger, func(), error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	format, err := logger.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	switch {
	case cfg.LogFile != "":
		f, err := logger.OpenFile(cfg.LogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	case cfg.UI != "cli":
		out = io.Discard
	}

	log := logger.New(logger.WithLevel(level), logger.WithFormat(format), logger.WithOutput(out))
	return log, closeFn, nil
}
