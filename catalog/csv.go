package catalog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVHeader is the column layout of embedding files.
var CSVHeader = []string{"tmdbId", "title", "overview", "embedding"}

// ErrMalformedCSV is returned when an embedding file lacks a required column.
var ErrMalformedCSV = errors.New("malformed embedding csv")

type csvWriter struct {
	w *csv.Writer
}

func newCSVWriter(w io.Writer) *csvWriter {
	return &csvWriter{w: csv.NewWriter(w)}
}

func (w *csvWriter) header() error {
	return w.w.Write(CSVHeader)
}

func (w *csvWriter) write(m Movie) error {
	vector, err := json.Marshal(m.Embedding)
	if err != nil {
		return fmt.Errorf("encode embedding of %v: %w", m.Key, err)
	}
	return w.w.Write([]string{fmt.Sprint(m.Key), m.Title, m.Overview, string(vector)})
}

func (w *csvWriter) flush() error {
	w.w.Flush()
	return w.w.Error()
}

// ExportCSV writes every stored embedding to w and returns the number of rows written.
func (c *Catalog) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	movies, err := c.movies(ctx, c.hasEmbeddingClause(), true)
	if err != nil {
		return 0, err
	}

	out := newCSVWriter(w)
	if err := out.header(); err != nil {
		return 0, err
	}
	written := 0
	for _, m := range movies {
		if err := out.write(m); err != nil {
			return written, err
		}
		written++
	}
	if err := out.flush(); err != nil {
		return written, err
	}
	c.logger.Info("exported %d embeddings", written)
	return written, nil
}

// ImportCSV stores the embeddings in r on the matching movies. Rows whose vector cannot be
// parsed or has the wrong dimension are counted as failed; a missing column fails the whole
// import.
func (c *Catalog) ImportCSV(ctx context.Context, r io.Reader) (Report, error) {
	manager, err := c.manager()
	if err != nil {
		return Report{}, err
	}

	in := csv.NewReader(r)
	in.FieldsPerRecord = -1
	in.ReuseRecord = true

	header, err := in.Read()
	if err != nil {
		return Report{}, fmt.Errorf("%w: reading header: %v", ErrMalformedCSV, err)
	}
	keyCol, vecCol, titleCol := -1, -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case CSVHeader[0]:
			keyCol = i
		case CSVHeader[1]:
			titleCol = i
		case CSVHeader[3]:
			vecCol = i
		}
	}
	if keyCol < 0 || vecCol < 0 {
		return Report{}, fmt.Errorf("%w: need %s and %s columns, got %v", ErrMalformedCSV, CSVHeader[0], CSVHeader[3], header)
	}

	var report Report
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		row, err := in.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("%w: line %d: %v", ErrMalformedCSV, line, err)
		}
		report.Total++

		if keyCol >= len(row) || vecCol >= len(row) {
			c.logger.Warn("line %d: too few columns", line)
			report.Failed++
			continue
		}
		title := ""
		if titleCol >= 0 && titleCol < len(row) {
			title = row[titleCol]
		}

		vector, err := decodeVector(row[vecCol])
		if err == nil && c.index.Dimensions > 0 && len(vector) != c.index.Dimensions {
			err = fmt.Errorf("got %d dimensions, index has %d", len(vector), c.index.Dimensions)
		}
		if err != nil {
			c.logger.Warn("line %d (%s): %v", line, title, err)
			report.Failed++
			continue
		}

		matched, err := manager.SetNodeVector(ctx, c.index, c.keyProperty, parseKey(row[keyCol]), vector)
		switch {
		case err != nil:
			c.logger.Warn("line %d (%s): %v", line, title, err)
			report.Failed++
		case !matched:
			report.Unmatched++
		default:
			report.Embedded++
		}
	}

	c.logger.Info("import csv done: %s", report)
	return report, nil
}

// parseKey turns a key cell into an integer when it is one, matching numeric tmdbIds.
func parseKey(s string) any {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return s
}

func decodeVector(s string) ([]float32, error) {
	var vector []float32
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &vector); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(vector) == 0 {
		return nil, errors.New("decode embedding: empty vector")
	}
	return vector, nil
}
