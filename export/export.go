package export

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pevans/repocrawl/scraper"
)

// Format is an output file format.
type Format string

const (
	XML  Format = "xml"
	JSON Format = "json"
	YAML Format = "yaml"
)

// ErrUnknownFormat is returned for formats other than xml, json and yaml.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat validates a format name. An empty name selects XML.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "xml":
		return XML, nil
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
}

// FormatForPath guesses the format from a file extension, falling back to
// XML.
func FormatForPath(path string) Format {
	format, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return XML
	}
	return format
}

// encoder writes one export format.
type encoder interface {
	begin() error
	encode(record scraper.FinalRecord) error
	end() error
}

// Exporter streams records to a temporary file and moves it over the
// destination on Close, so an export always replaces the previous one.
type Exporter struct {
	mu     sync.Mutex
	path   string
	tmp    *os.File
	w      *bufio.Writer
	enc    encoder
	count  int
	closed bool
}

// NewExporter creates an exporter writing format to path. The destination is
// untouched until Close.
func NewExporter(path string, format Format) (*Exporter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}

	e := &Exporter{
		path: path,
		tmp:  tmp,
		w:    bufio.NewWriter(tmp),
	}

	switch format {
	case XML:
		e.enc = newXMLEncoder(e.w)
	case JSON:
		e.enc = newJSONEncoder(e.w)
	case YAML:
		e.enc = newYAMLEncoder(e.w)
	default:
		e.discard()
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	if err := e.enc.begin(); err != nil {
		e.discard()
		return nil, fmt.Errorf("failed to start export: %w", err)
	}

	return e, nil
}

// Write adds a record to the export. It is safe for concurrent use.
func (e *Exporter) Write(record scraper.FinalRecord) error {
	if record.URL == "" {
		return fmt.Errorf("record has no URL")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("exporter is closed")
	}
	if err := e.enc.encode(record); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	e.count++
	return nil
}

// Count returns the number of records written so far.
func (e *Exporter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Close finishes the document and replaces the destination file.
func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if err := e.enc.end(); err != nil {
		e.discard()
		return fmt.Errorf("failed to finish export: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		e.discard()
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := e.tmp.Chmod(0o644); err != nil {
		e.discard()
		return fmt.Errorf("failed to set export permissions: %w", err)
	}
	if err := e.tmp.Close(); err != nil {
		os.Remove(e.tmp.Name())
		return fmt.Errorf("failed to close export: %w", err)
	}
	if err := os.Rename(e.tmp.Name(), e.path); err != nil {
		os.Remove(e.tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", e.path, err)
	}

	return nil
}

// Abort drops everything written so far and leaves the destination as it
// was.
func (e *Exporter) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.discard()
}

func (e *Exporter) discard() {
	e.tmp.Close()
	os.Remove(e.tmp.Name())
}
