// Package report renders run results as a workbook, markdown, HTML and YAML.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"perchmp/domain/run"
	"perchmp/internal"
	"perchmp/internal/errors"
	"perchmp/ports"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Supported output formats
const (
	FormatXLSX     = "xlsx"
	FormatMarkdown = "md"
	FormatHTML     = "html"
	FormatYAML     = "yaml"
)

// Writer writes the configured formats into an output directory
type Writer struct {
	formats []string
	logger  *internal.Logger
}

var _ ports.ReportWriter = (*Writer)(nil)

// NewWriter creates a writer; unknown formats are rejected at Write time
func NewWriter(formats []string, logger *internal.Logger) *Writer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Writer{formats: formats, logger: logger.With("report")}
}

// Write renders every configured format into dir. Files are named after the run ID so
// repeated runs into the same directory do not overwrite each other.
func (w *Writer) Write(ctx context.Context, result *run.Result, dir string) ([]string, error) {
	if result == nil || result.Manifest == nil {
		return nil, errors.InvalidInput("result has no manifest")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.ReportFailed(err, dir)
	}

	base := filepath.Join(dir, "perchmp-"+result.Manifest.RunID.String())
	render := make([]func(string) error, len(w.formats))
	for i, format := range w.formats {
		switch strings.ToLower(format) {
		case FormatXLSX:
			render[i] = func(path string) error { return WriteWorkbook(path, result) }
		case FormatMarkdown:
			render[i] = func(path string) error { return os.WriteFile(path, RenderMarkdown(result), 0o644) }
		case FormatHTML:
			render[i] = func(path string) error { return os.WriteFile(path, RenderHTML(result), 0o644) }
		case FormatYAML:
			render[i] = func(path string) error { return WriteYAML(path, result) }
		default:
			return nil, errors.InvalidInput(fmt.Sprintf("unknown report format %q", format))
		}
	}

	// formats only read the result, so they render side by side
	paths := make([]string, len(w.formats))
	g, gctx := errgroup.WithContext(ctx)
	for i, format := range w.formats {
		path := base + "." + strings.ToLower(format)
		paths[i] = path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := render[i](path); err != nil {
				return errors.ReportFailed(err, path)
			}
			w.logger.Info("wrote %s", path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// WriteYAML dumps the full result, manifest first, as YAML
func WriteYAML(path string, result *run.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}
