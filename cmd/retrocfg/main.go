// Package main implements the control flow graph recovery tool for x86 ELF binaries
package main

import (
	"context"
	"errors"
	"os"

	"github.com/retroenv/retrocfg/internal/cli"
	"github.com/retroenv/retrocfg/internal/config"
	"github.com/retroenv/retrocfg/internal/fileprocessor"
	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx := app.Context()

	root := cli.NewRootCommand(buildinfo.Version(version, commit, date), run)
	if err := cli.Execute(ctx, root); err != nil {
		logger := config.CreateLogger(false, false)
		// Handle context cancellation (Ctrl+C) gracefully
		if errors.Is(err, context.Canceled) {
			logger.Info("Operation cancelled")
		} else {
			logger.Error("Recovery failed", log.Err(err))
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options.Program) error {
	logger := config.CreateLogger(opts.Debug, opts.Quiet)
	fileprocessor.PrintBanner(logger, opts, version, commit, date)

	if opts.Output == "" {
		opts.Output = fileprocessor.GenerateOutputFilename(opts.Input, opts.Format)
	}

	return fileprocessor.ProcessFile(ctx, logger, opts)
}
