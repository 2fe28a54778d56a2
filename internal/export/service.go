// Package export writes filtered entity collections as spreadsheets.
package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/querykit/internal/domain"
)

const (
	defaultPageSize = 500
	defaultMaxRows  = 100000
	sheetName       = "Entities"
)

// Format names an output encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// ErrTooManyRows is returned when a collection exceeds the configured cap.
var ErrTooManyRows = errors.New("export exceeds row limit")

// Service streams collections into spreadsheets, reading pageSize entities
// at a time.
type Service struct {
	pageSize int
	maxRows  int
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPageSize sets how many entities are read per batch.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithMaxRows caps the number of exported rows.
func WithMaxRows(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxRows = limit
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates an export service.
func NewService(opts ...Option) *Service {
	s := &Service{
		pageSize: defaultPageSize,
		maxRows:  defaultMaxRows,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Columns returns the header row for fields: id, each field name, created_at.
func Columns(fields []string) []string {
	headers := make([]string, 0, len(fields)+2)
	headers = append(headers, "id")
	for _, field := range fields {
		if strings.TrimSpace(field) != "" {
			headers = append(headers, field)
		}
	}
	return append(headers, "created_at")
}

// Write encodes every entity of coll in order. It fails with ErrTooManyRows
// before writing anything when coll is larger than the row cap.
func (s *Service) Write(ctx context.Context, w io.Writer, format Format, fields []string, coll domain.Collection) (int, error) {
	total, err := coll.Count(ctx)
	if err != nil {
		return 0, domain.NewExecutionError("count export rows", err)
	}
	if total > s.maxRows {
		return 0, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, total, s.maxRows)
	}

	headers := Columns(fields)
	var sink rowSink
	switch format {
	case FormatCSV:
		sink = newCSVSink(w)
	case FormatXLSX:
		sink, err = newXLSXSink(w)
		if err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unsupported export format %q", format)
	}
	defer sink.Close()

	if err := sink.WriteRow(headers); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(headers))
	exported := 0
	for offset := 0; offset < total; offset += s.pageSize {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		entities, err := coll.Slice(ctx, offset, s.pageSize)
		if err != nil {
			return exported, domain.NewExecutionError("read export rows", err)
		}
		for _, entity := range entities {
			row[0] = entity.ID.String()
			for i, field := range headers[1 : len(headers)-1] {
				row[i+1] = formatValue(entity.Properties[field])
			}
			row[len(row)-1] = entity.CreatedAt.UTC().Format(time.RFC3339)
			if err := sink.WriteRow(row); err != nil {
				return exported, fmt.Errorf("write entity row: %w", err)
			}
			exported++
		}
		if len(entities) < s.pageSize {
			break
		}
	}

	if err := sink.Flush(); err != nil {
		return exported, fmt.Errorf("flush export: %w", err)
	}
	s.logger.Debug("export written", "format", format, "rows", exported)
	return exported, nil
}

type rowSink interface {
	WriteRow(values []string) error
	Flush() error
	Close() error
}

type csvSink struct {
	buffered *bufio.Writer
	writer   *csv.Writer
}

func newCSVSink(w io.Writer) *csvSink {
	buffered := bufio.NewWriterSize(w, 1<<16)
	return &csvSink{buffered: buffered, writer: csv.NewWriter(buffered)}
}

func (c *csvSink) WriteRow(values []string) error {
	return c.writer.Write(values)
}

func (c *csvSink) Flush() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return err
	}
	return c.buffered.Flush()
}

func (c *csvSink) Close() error { return nil }

type xlsxSink struct {
	out    io.Writer
	file   *excelize.File
	stream *excelize.StreamWriter
	row    int
}

func newXLSXSink(w io.Writer) (*xlsxSink, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	stream, err := f.NewStreamWriter(sheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open sheet stream: %w", err)
	}
	return &xlsxSink{out: w, file: f, stream: stream}, nil
}

func (x *xlsxSink) WriteRow(values []string) error {
	x.row++
	cell, err := excelize.CoordinatesToCellName(1, x.row)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return x.stream.SetRow(cell, cells)
}

func (x *xlsxSink) Flush() error {
	if err := x.stream.Flush(); err != nil {
		return err
	}
	return x.file.Write(x.out)
}

func (x *xlsxSink) Close() error {
	return x.file.Close()
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case float32, float64, int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%v", v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
