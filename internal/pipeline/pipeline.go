// Package pipeline orchestrates the recovery workflow stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/retroenv/retrocfg/internal/config"
	"github.com/retroenv/retrocfg/internal/defs"
	"github.com/retroenv/retrocfg/internal/detector"
	"github.com/retroenv/retrocfg/internal/disasm"
	"github.com/retroenv/retrocfg/internal/loader"
	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrocfg/internal/verification"
	"github.com/retroenv/retrocfg/internal/writer"
	"github.com/retroenv/retrogolib/log"
)

// Pipeline orchestrates the complete recovery workflow.
type Pipeline struct {
	logger   *log.Logger
	detector *detector.Detector
	loader   *loader.Loader
}

// New creates a new recovery pipeline.
func New(logger *log.Logger) *Pipeline {
	return &Pipeline{
		logger:   logger,
		detector: detector.New(logger),
		loader:   loader.New(logger),
	}
}

// Execute runs the complete recovery pipeline and writes the recovered module
// in the requested format.
func (p *Pipeline) Execute(ctx context.Context, opts options.Program, w io.Writer) (*program.Module, error) {
	target, err := p.detector.Detect(opts)
	if err != nil {
		return nil, fmt.Errorf("detecting binary format: %w", err)
	}

	file, err := p.loader.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("loading binary: %w", err)
	}

	table, err := p.loadDefinitions(opts, target)
	if err != nil {
		return nil, fmt.Errorf("loading definitions: %w", err)
	}

	p.printInfo(opts, target, table)
	return p.ExecuteWithProvider(ctx, file, table, opts, w)
}

// ExecuteWithProvider runs the recovery pipeline with an already opened
// provider and loaded definitions.
// This is useful for testing and programmatic usage where the binary is already in memory.
func (p *Pipeline) ExecuteWithProvider(ctx context.Context, prov provider.Provider, table *defs.Table,
	opts options.Program, w io.Writer) (*program.Module, error) {

	dis := disasm.New(p.logger, prov, table, options.NewRecovery(opts))
	module, err := dis.Process(ctx)
	if err != nil {
		return nil, fmt.Errorf("recovering control flow: %w", err)
	}

	if opts.Verify {
		if err := verification.VerifyModule(module, prov.AddressSize()); err != nil {
			return nil, fmt.Errorf("verification failed: %w", err)
		}
		p.logger.Info("Module verification successful")
	}

	wr := writer.New(module, w, writer.Options{
		Format: opts.Format,
		Title:  module.Name,
	})
	if err := wr.Write(); err != nil {
		return nil, fmt.Errorf("writing output: %w", err)
	}
	return module, nil
}

// loadDefinitions loads the default definitions of the operating system
// followed by all user supplied definitions files. Missing files are skipped
// with a warning.
func (p *Pipeline) loadDefinitions(opts options.Program, target detector.Target) (*defs.Table, error) {
	table := defs.New(target.AddressSize)

	if opts.DefsDir != "" && target.OS != "" {
		path := config.DefaultDefsFile(opts.DefsDir, target.OS)
		err := table.Load(path)
		switch {
		case errors.Is(err, defs.ErrNotFound):
			p.logger.Warn("Default definitions file not found",
				log.String("path", path))
		case err != nil:
			return nil, err
		}
	}

	missing, err := table.LoadFiles(opts.StdDefs...)
	for _, path := range missing {
		p.logger.Warn("Definitions file not found, skipping",
			log.String("path", path))
	}
	if err != nil {
		return nil, err
	}
	return table, nil
}

// printInfo prints information about the binary being processed.
func (p *Pipeline) printInfo(opts options.Program, target detector.Target, table *defs.Table) {
	if opts.Quiet {
		return
	}

	p.logger.Info("Processing binary",
		log.String("file", opts.Input),
		log.String("os", target.OS),
		log.Int("address_size", target.AddressSize),
		log.Int("definitions", table.Len()),
		log.String("format", opts.Format),
	)
}
