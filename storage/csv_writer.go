package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"auction-importer/models"
)

var rawAuditHeader = []string{
	"run_id", "received_at", "auction_id", "title", "make", "model", "price",
	"mileage", "mileage_formatted", "year", "end_time", "fuel", "transmission",
	"country", "location", "image_url", "detail_url",
}

// CSVWriter keeps an audit copy of the raw records of each import, exactly
// as received. It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter opens the audit file for appending, creating it and its
// directory if needed. The header is written once, when the file is new.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open file %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: stat %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(rawAuditHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		w.Flush()
	}

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRaw appends one row per record, tagged with the import run.
func (c *CSVWriter) WriteRaw(runID string, receivedAt time.Time, records []models.RawRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := receivedAt.Format(time.RFC3339)
	for _, r := range records {
		row := []string{
			runID,
			ts,
			r.AuctionID.String(),
			r.Title.String(),
			r.Make.String(),
			r.Model.String(),
			r.Price.String(),
			r.Mileage.String(),
			r.MileageFormatted.String(),
			r.Year.String(),
			endTimeCell(r.EndTime),
			r.Fuel.String(),
			r.Transmission.String(),
			r.Country.String(),
			r.Location.String(),
			r.ImageURL.String(),
			r.DetailURL.String(),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// endTimeCell renders the end time in its original JSON shape.
func endTimeCell(e models.EndTime) string {
	if !e.Present {
		return ""
	}
	if !e.IsObject {
		return e.ISO
	}
	b, _ := json.Marshal(e)
	return string(b)
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}
