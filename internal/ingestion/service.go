// Package ingestion loads entities from tabular uploads and YAML seed files,
// validating every row against the entity type's schema.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/querykit/internal/domain"
	"github.com/rpattn/querykit/internal/repository"
	"github.com/rpattn/querykit/pkg/validator"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"01/02/2006",
	}
)

// Service writes validated entities into a repository.
type Service struct {
	schemaRepo repository.EntitySchemaRepository
	entityRepo repository.EntityRepository
	logRepo    repository.IngestionLogRepository
	validator  *validator.JSONBValidator
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithIngestionLog records every row rejected by Import in repo.
func WithIngestionLog(repo repository.IngestionLogRepository) Option {
	return func(s *Service) {
		s.logRepo = repo
	}
}

// NewService creates a new ingestion service.
func NewService(
	schemaRepo repository.EntitySchemaRepository,
	entityRepo repository.EntityRepository,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		schemaRepo: schemaRepo,
		entityRepo: entityRepo,
		validator:  validator.NewJSONBValidator(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestionLog returns the repository rejected rows are recorded in, or nil.
func (s *Service) IngestionLog() repository.IngestionLogRepository {
	return s.logRepo
}

// Request describes a tabular upload. The header row names the fields.
type Request struct {
	EntityType string
	FileName   string
	Data       io.Reader
}

// RowError describes why one row was rejected.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Summary returns ingestion level metrics.
type Summary struct {
	TotalRows   int        `json:"totalRows"`
	ValidRows   int        `json:"validRows"`
	InvalidRows int        `json:"invalidRows"`
	Errors      []RowError `json:"errors"`
}

func (s *Summary) reject(row int, err error) {
	s.InvalidRows++
	s.Errors = append(s.Errors, RowError{Row: row, Message: err.Error()})
}

type tableData struct {
	headers []string
	rows    [][]string
	// firstRow is the 1-based file row of rows[0].
	firstRow int
}

// Import reads a CSV or XLSX upload and stores each valid row as an entity of
// req.EntityType. Invalid rows are skipped and reported in the summary.
func (s *Service) Import(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{Errors: []RowError{}}

	if strings.TrimSpace(req.EntityType) == "" {
		return summary, errors.New("entity type is required")
	}
	if req.Data == nil {
		return summary, errors.New("data reader is required")
	}

	schema, err := s.schemaRepo.GetByName(ctx, req.EntityType)
	if err != nil {
		return summary, err
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	table, err := parseTable(req.FileName, payload)
	if err != nil {
		return summary, err
	}

	fields := schema.FieldsByName()
	for _, header := range table.headers {
		if _, ok := fields[header]; !ok && header != "" {
			return summary, fmt.Errorf("column %q is not a field of %s", header, schema.Name)
		}
	}

	summary.TotalRows = len(table.rows)
	for i, row := range table.rows {
		rowNumber := table.firstRow + i
		properties, err := rowProperties(table.headers, row, fields)
		if err != nil {
			summary.reject(rowNumber, err)
			continue
		}
		if err := s.store(ctx, schema, properties); err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.reject(rowNumber, err)
			continue
		}
		summary.ValidRows++
	}

	s.recordRejections(ctx, schema.Name, req.FileName, summary.Errors)

	s.logger.Info("import finished",
		"entity_type", schema.Name,
		"file", req.FileName,
		"total", summary.TotalRows,
		"valid", summary.ValidRows,
		"invalid", summary.InvalidRows,
	)
	return summary, nil
}

// recordRejections is best-effort: a failure is logged and the import result
// stands.
func (s *Service) recordRejections(ctx context.Context, entityType, fileName string, rejected []RowError) {
	if s.logRepo == nil {
		return
	}
	for _, rowErr := range rejected {
		row := rowErr.Row
		err := s.logRepo.Record(ctx, domain.IngestionLogEntry{
			EntityType:   entityType,
			FileName:     fileName,
			RowNumber:    &row,
			ErrorMessage: rowErr.Message,
		})
		if err != nil {
			s.logger.Warn("failed to record rejected row",
				"entity_type", entityType, "file", fileName, "row", row, "error", err)
			return
		}
	}
}

func (s *Service) store(ctx context.Context, schema domain.EntitySchema, properties map[string]any) error {
	if err := s.validator.ValidateProperties(properties, schema).Err(); err != nil {
		return err
	}
	_, err := s.entityRepo.Create(ctx, domain.NewEntity(schema.Name, properties))
	return err
}

func parseTable(fileName string, payload []byte) (tableData, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return tableData{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(records)
}

func parseExcel(payload []byte) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalizeTable(rows)
}

// normalizeTable takes the first non-blank row as the header. Blank rows
// after it are dropped and the rest are padded to the header width.
func normalizeTable(records [][]string) (tableData, error) {
	headerIndex := -1
	for idx, row := range records {
		if !isBlank(row) {
			headerIndex = idx
			break
		}
	}
	if headerIndex < 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	headers := make([]string, len(records[headerIndex]))
	for i, value := range records[headerIndex] {
		headers[i] = strings.TrimSpace(value)
	}

	table := tableData{headers: headers, firstRow: headerIndex + 2}
	for idx := headerIndex + 1; idx < len(records); idx++ {
		if isBlank(records[idx]) {
			if len(table.rows) == 0 {
				table.firstRow++
			}
			continue
		}
		table.rows = append(table.rows, padRow(records[idx], len(headers)))
	}
	return table, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

// rowProperties converts one row into typed properties. Empty cells are
// left out so optional fields stay missing.
func rowProperties(headers, row []string, fields map[string]domain.FieldDefinition) (map[string]any, error) {
	properties := make(map[string]any, len(headers))
	for i, header := range headers {
		if header == "" {
			continue
		}
		raw := strings.TrimSpace(row[i])
		if raw == "" {
			continue
		}
		value, err := coerceCell(fields[header].Type, raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", header, err)
		}
		properties[header] = value
	}
	return properties, nil
}

func coerceCell(fieldType domain.FieldType, raw string) (any, error) {
	switch fieldType {
	case domain.FieldTypeInteger:
		v, err := cast.ToInt64E(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		return v, nil
	case domain.FieldTypeFloat:
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q", raw)
		}
		return v, nil
	case domain.FieldTypeBoolean:
		v, err := cast.ToBoolE(strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q", raw)
		}
		return v, nil
	case domain.FieldTypeTimestamp:
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, err
		}
		return ts.UTC().Format(time.RFC3339), nil
	case domain.FieldTypeJSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return v, nil
	case domain.FieldTypeEntityReferenceArray:
		parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
		values := make([]any, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				values = append(values, trimmed)
			}
		}
		return values, nil
	default:
		return raw, nil
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}
