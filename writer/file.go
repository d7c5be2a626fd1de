package writer

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"binflow/logger"
	"binflow/models"
)

// lineState is the rotation state for one stream-kind+symbol in one line
// format. A part file, once closed, is never reopened.
type lineState struct {
	part   int
	lines  int
	file   *os.File
	csv    *csv.Writer
	header []string
}

// LineSink writes class-A formats (jsonl, csv): every record is appended and
// flushed immediately, and the open part rotates after rotateLines records.
// One LineSink instance exists per requested format; state is keyed by
// stream-kind+symbol and only ever touched by the dispatcher.
type LineSink struct {
	format      string
	dir         string
	rotateLines int
	states      map[string]*lineState
	log         *logger.Log
	closed      bool
}

// NewLineSink creates a line-format sink. format must be "jsonl" or "csv";
// the output directory is created if missing.
func NewLineSink(format, dir string, rotateLines int) (*LineSink, error) {
	switch format {
	case "jsonl", "csv":
	default:
		return nil, fmt.Errorf("unsupported line format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	log := logger.GetLogger()
	log.WithComponent("file_sink").WithFields(logger.Fields{
		"format":       format,
		"output_dir":   dir,
		"rotate_lines": rotateLines,
	}).Info("file sink initialized")

	return &LineSink{
		format:      format,
		dir:         dir,
		rotateLines: rotateLines,
		states:      make(map[string]*lineState),
		log:         log,
	}, nil
}

func (s *LineSink) Name() string { return "file_" + s.format }

func (s *LineSink) Write(_ context.Context, msg models.NormalizedMessage) error {
	key := msg.Key()
	state := s.states[key]
	if state == nil {
		state = &lineState{}
		s.states[key] = state
	}

	if state.file == nil {
		if err := s.openPart(key, state, msg); err != nil {
			return err
		}
	}

	var written int
	switch s.format {
	case "jsonl":
		line := append(msg.PayloadJSON(), '\n')
		n, err := state.file.Write(line)
		if err != nil {
			return fmt.Errorf("jsonl write failed: %w", err)
		}
		written = n
	case "csv":
		row := make([]string, len(state.header))
		values := msg.FieldMap()
		for i, name := range state.header {
			row[i] = values[name]
		}
		if err := state.csv.Write(row); err != nil {
			return fmt.Errorf("csv write failed: %w", err)
		}
		state.csv.Flush()
		if err := state.csv.Error(); err != nil {
			return fmt.Errorf("csv flush failed: %w", err)
		}
		written = len(row)
	}

	logger.IncrementSinkWrite(s.Name(), written)
	state.lines++
	if state.lines >= s.rotateLines {
		if err := s.closePart(key, state); err != nil {
			return err
		}
	}
	return nil
}

func (s *LineSink) openPart(key string, state *lineState, msg models.NormalizedMessage) error {
	state.part++
	name := fmt.Sprintf("%s_%d.%s", key, state.part, s.format)
	path := filepath.Join(s.dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open part file %s: %w", path, err)
	}
	state.file = file
	state.lines = 0

	if s.format == "csv" {
		state.csv = csv.NewWriter(file)
		if state.header == nil {
			state.header = msg.FieldNames()
		}
		// The header is rewritten on every part and does not count as a
		// record toward rotation.
		if err := state.csv.Write(state.header); err != nil {
			return fmt.Errorf("csv header write failed: %w", err)
		}
		state.csv.Flush()
		if err := state.csv.Error(); err != nil {
			return fmt.Errorf("csv header flush failed: %w", err)
		}
	}

	s.log.WithComponent("file_sink").WithFields(logger.Fields{
		"file":   path,
		"format": s.format,
	}).Debug("opened part file")
	return nil
}

func (s *LineSink) closePart(key string, state *lineState) error {
	if state.file == nil {
		return nil
	}
	if state.csv != nil {
		state.csv.Flush()
	}
	path := state.file.Name()
	if err := state.file.Close(); err != nil {
		return fmt.Errorf("failed to close part file %s: %w", path, err)
	}
	state.file = nil
	state.csv = nil

	s.log.WithComponent("file_sink").WithFields(logger.Fields{
		"file":    path,
		"key":     key,
		"records": state.lines,
	}).Info("rotated part file")
	return nil
}

// Flush is a no-op for line formats: every record is flushed on write.
func (s *LineSink) Flush() error { return nil }

// Close closes all open part files. Idempotent.
func (s *LineSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for key, state := range s.states {
		if err := s.closePart(key, state); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
