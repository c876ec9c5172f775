package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/sellerwatch/models"
)

var csvHeader = []string{
	"id", "seller", "listing_id", "release_id", "master_id", "artist", "title", "format",
	"condition", "price", "currency", "status", "status_confidence", "listing_url", "cover_image", "date_found",
}

// CSVWriter writes matches to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

func csvRecord(m *models.SellerMatch) []string {
	return []string{
		m.ID,
		m.SellerID,
		strconv.FormatInt(m.ListingID, 10),
		strconv.Itoa(m.ReleaseID),
		strconv.Itoa(m.MasterID),
		m.Artist,
		m.Title,
		strings.Join(m.Format, "; "),
		m.Condition,
		strconv.FormatFloat(m.Price, 'f', 2, 64),
		m.Currency,
		string(m.Status),
		string(m.StatusConfidence),
		m.ListingURL,
		m.CoverImage,
		m.DateFound.Format(time.RFC3339),
	}
}

// Write appends matches to the CSV output.
func (cw *CSVWriter) Write(matches []*models.SellerMatch) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, match := range matches {
		if err := cw.writer.Write(csvRecord(match)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends matches in JSONL format.
func (jw *JSONWriter) Write(matches []*models.SellerMatch) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, match := range matches {
		if err := jw.encoder.Encode(match); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// NewWriter opens the writer for format ("csv", "json" or "dual") at base,
// a path without extension.
func NewWriter(format, base string) (OutputWriter, error) {
	var (
		w   OutputWriter
		err error
	)
	switch strings.ToLower(format) {
	case "csv":
		w, err = NewCSVWriter(base + ".csv")
	case "json":
		w, err = NewJSONWriter(base + ".jsonl")
	case "dual", "":
		w, err = NewDualWriter(base+".csv", base+".jsonl")
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
