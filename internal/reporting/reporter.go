// -- internal/reporting/reporter.go --
package reporting

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// Output formats accepted by New.
const (
	FormatJSON  = "json"
	FormatHTML  = "html"
	FormatSARIF = "sarif"
)

// ErrNoReport is returned by Latest when dir holds no JSON report.
var ErrNoReport = errors.New("no JSON report found")

// Reporter writes a run report to an output.
type Reporter interface {
	// Write renders the report. It may be called once.
	Write(report *Report) error
	// Close finalizes the output and closes any underlying file.
	Close() error
}

// Options carries the presentation settings shared by the renderers.
type Options struct {
	Title       string
	Application string
	// Driver names the browser backend in the HTML footer.
	Driver      string
	ToolVersion string
	// BaseDir is the directory screenshot links are made relative to. New
	// sets it to the directory of the output file when empty.
	BaseDir string
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "Rapport de Sécurité - Authentification"
	}
	if o.Application == "" {
		o.Application = "Application de Gestion des Patients"
	}
	if o.Driver == "" {
		o.Driver = "Selenium WebDriver"
	}
	if o.ToolVersion == "" {
		o.ToolVersion = "dev"
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath. An empty path or
// "stdout" writes to standard output.
func New(format, outputPath string, opts Options) (Reporter, error) {
	render, err := renderer(format)
	if err != nil {
		return nil, err
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		path, err := homedir.Expand(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand output path %s: %w", outputPath, err)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
		}
		writer = f
		if opts.BaseDir == "" {
			opts.BaseDir = filepath.Dir(path)
		}
	}
	return newWriterReporter(writer, format, render, opts), nil
}

type renderFunc func(*Report, Options) ([]byte, error)

func renderer(format string) (renderFunc, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return func(r *Report, _ Options) ([]byte, error) { return encodeJSON(r) }, nil
	case FormatHTML:
		return RenderHTML, nil
	case FormatSARIF:
		return RenderSARIF, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriterReporter renders a report once into the writer it owns.
type WriterReporter struct {
	writer  io.WriteCloser
	format  string
	render  renderFunc
	opts    Options
	logger  *zap.Logger
	written bool
}

// newWriterReporter takes ownership of writer.
func newWriterReporter(writer io.WriteCloser, format string, render renderFunc, opts Options) *WriterReporter {
	opts = opts.withDefaults()
	return &WriterReporter{
		writer: writer,
		format: format,
		render: render,
		opts:   opts,
		logger: opts.Logger.Named("reporter").With(zap.String("format", format)),
	}
}

// Write renders report into the underlying writer.
func (w *WriterReporter) Write(report *Report) error {
	if report == nil {
		return errors.New("report cannot be nil")
	}
	if w.written {
		return fmt.Errorf("%s report already written", w.format)
	}
	data, err := w.render(report, w.opts)
	if err != nil {
		return err
	}
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write %s report: %w", w.format, err)
	}
	w.written = true
	w.logger.Debug("Report written.", zap.Int("bytes", len(data)), zap.Int("results", len(report.Results)))
	return nil
}

// Close closes the underlying writer.
func (w *WriterReporter) Close() error {
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}

// FileName returns the timestamped report path for format under dir.
func FileName(dir, format string, now time.Time) string {
	ext := strings.ToLower(format)
	return filepath.Join(dir, fmt.Sprintf("security_report_%s.%s", now.Format("20060102_150405"), ext))
}

// Latest returns the most recent JSON report FileName produced under dir. The
// timestamp in the name sorts chronologically.
func Latest(dir string) (string, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand report directory %s: %w", dir, err)
	}
	matches, err := filepath.Glob(filepath.Join(expanded, "security_report_*."+FormatJSON))
	if err != nil {
		return "", fmt.Errorf("failed to list reports in %s: %w", expanded, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoReport, expanded)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// WriteAll writes report in every format under dir and returns the created
// paths in format order. Writing stops at the first failure.
func WriteAll(report *Report, dir string, formats []string, now time.Time, opts Options) ([]string, error) {
	dir, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand report directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}

	var paths []string
	for _, format := range formats {
		path := FileName(dir, format, now)
		r, err := New(format, path, opts)
		if err != nil {
			return paths, err
		}
		werr := r.Write(report)
		cerr := r.Close()
		if err := errors.Join(werr, cerr); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
