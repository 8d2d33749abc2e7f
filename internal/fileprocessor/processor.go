// Package fileprocessor handles file loading and processing operations
package fileprocessor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrocfg/internal/pipeline"
	"github.com/retroenv/retrocfg/internal/verification"
	"github.com/retroenv/retrogolib/log"
)

var formatExtensions = map[string]string{
	options.FormatCFG:       ".cfg",
	options.FormatJSON:      ".json",
	options.FormatDOT:       ".dot",
	options.FormatCallGraph: ".dot",
}

// ProcessFile handles the complete file processing workflow
func ProcessFile(ctx context.Context, logger *log.Logger, opts options.Program) error {
	writer, err := createWriter(opts)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}

	pipe := pipeline.New(logger)
	module, err := pipe.Execute(ctx, opts, writer)
	if closer, ok := writer.(io.Closer); ok && writer != os.Stdout {
		if closeErr := closer.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing output file: %w", closeErr)
		}
	}
	if err != nil {
		removeOutput(logger, opts, writer)
		return err
	}

	if opts.Verify && opts.Format == options.FormatCFG {
		if err := verification.VerifyOutput(logger, opts.Output, module); err != nil {
			return fmt.Errorf("output verification failed: %w", err)
		}
		logger.Info("Output verification successful")
	}
	return nil
}

// GenerateOutputFilename generates output filename for a given input file
// by appending the extension of the output format.
func GenerateOutputFilename(inputFile, format string) string {
	ext, ok := formatExtensions[format]
	if !ok {
		ext = "." + format
	}
	return inputFile + ext
}

func createWriter(opts options.Program) (io.Writer, error) {
	if opts.Output == "" || opts.Output == "-" {
		return os.Stdout, nil
	}

	file, err := os.Create(opts.Output)
	if err != nil {
		return nil, fmt.Errorf("creating output file %s: %w", opts.Output, err)
	}
	return file, nil
}

// removeOutput deletes a partially written output file.
func removeOutput(logger *log.Logger, opts options.Program, writer io.Writer) {
	if writer == os.Stdout {
		return
	}
	if err := os.Remove(opts.Output); err != nil {
		logger.Warn("Removing incomplete output file failed",
			log.String("file", opts.Output),
			log.Err(err))
	}
}

// PrintBanner prints application version information
func PrintBanner(logger *log.Logger, opts options.Program, version, commit, date string) {
	if opts.Quiet {
		return
	}

	versionString := version
	if commit != "" {
		if len(commit) > 7 {
			commit = commit[:7]
		}
		versionString += fmt.Sprintf(" (%s)", commit)
	}

	logger.Info("retrocfg", log.String("version", versionString))

	if date != "" && !strings.Contains(date, "unknown") {
		logger.Info("Build", log.String("date", date))
	}
}
