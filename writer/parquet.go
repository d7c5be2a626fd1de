package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"binflow/logger"
	"binflow/models"
)

// memFile implements source.ParquetFile for in-memory part encoding.
type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, io.EOF }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
func (m *memFile) Bytes() []byte                             { return m.buffer.Bytes() }

// batchState accumulates one stream-kind+symbol's records until a part is
// due. All columns are UTF8 strings, so the schema is just the field names
// of the first record.
type batchState struct {
	part     int
	fields   []string
	payloads []string
}

func (b *batchState) add(msg models.NormalizedMessage) {
	if b.fields == nil {
		b.fields = msg.FieldNames()
	}
	// Every column is UTF8, so raw JSON values (depth levels) are kept as
	// their string form rather than nested structures.
	record, _ := json.Marshal(msg.FieldMap())
	b.payloads = append(b.payloads, string(record))
}

// parquetSchema builds the parquet-go JSON schema for a set of string
// columns.
func parquetSchema(fields []string) string {
	var sb strings.Builder
	sb.WriteString(`{"Tag":"name=parquet_go_root, repetitiontype=REQUIRED","Fields":[`)
	for i, name := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, `{"Tag":"name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"}`, name)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

// encodeParquetPart serializes the batch into one complete parquet file.
func encodeParquetPart(state *batchState, compression string) ([]byte, error) {
	fw := newMemFile()

	pw, err := pqwriter.NewJSONWriter(parquetSchema(state.fields), fw, 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, payload := range state.payloads {
		if err := pw.Write(payload); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

// ParquetSink accumulates messages per stream-kind+symbol and writes each
// full batch as one complete local parquet part. Flush writes any partial
// batch as a final short part.
type ParquetSink struct {
	dir         string
	batchSize   int
	compression string
	states      map[string]*batchState
	log         *logger.Log
	closed      bool
}

func NewParquetSink(dir string, batchSize int, compression string) (*ParquetSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	log := logger.GetLogger()
	log.WithComponent("parquet_sink").WithFields(logger.Fields{
		"output_dir":  dir,
		"batch_size":  batchSize,
		"compression": compression,
	}).Info("parquet sink initialized")

	return &ParquetSink{
		dir:         dir,
		batchSize:   batchSize,
		compression: compression,
		states:      make(map[string]*batchState),
		log:         log,
	}, nil
}

func (s *ParquetSink) Name() string { return "file_parquet" }

func (s *ParquetSink) Write(_ context.Context, msg models.NormalizedMessage) error {
	key := msg.Key()
	state := s.states[key]
	if state == nil {
		state = &batchState{}
		s.states[key] = state
	}

	state.add(msg)
	if len(state.payloads) >= s.batchSize {
		return s.writePart(key, state)
	}
	return nil
}

func (s *ParquetSink) writePart(key string, state *batchState) error {
	if len(state.payloads) == 0 {
		return nil
	}

	batchID := uuid.New().String()
	records := len(state.payloads)
	data, err := encodeParquetPart(state, s.compression)
	// A failed encode still discards the batch: the records are gone either
	// way and keeping them would wedge every later part.
	state.payloads = nil
	if err != nil {
		logger.IncrementSinkDrop(s.Name())
		return fmt.Errorf("parquet batch %s for %s failed: %w", batchID, key, err)
	}

	state.part++
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%d.parquet", key, state.part))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.IncrementSinkDrop(s.Name())
		return fmt.Errorf("failed to write parquet part %s: %w", path, err)
	}

	logger.IncrementSinkWrite(s.Name(), len(data))
	log := s.log.WithComponent("parquet_sink").WithFields(logger.Fields{
		"batch_id": batchID,
		"file":     path,
		"records":  records,
		"size":     len(data),
	})
	log.Info("wrote parquet part")
	logger.LogDataFlowEntry(log, "parquet_batch", "local_part", records, "parquet_records")
	return nil
}

// Flush writes every partial batch as a final short part.
func (s *ParquetSink) Flush() error {
	var firstErr error
	for key, state := range s.states {
		if err := s.writePart(key, state); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close flushes remaining batches. Idempotent.
func (s *ParquetSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.Flush()
}
