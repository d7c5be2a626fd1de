package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"binflow/logger"
	"binflow/models"
)

// ConsoleSink prints one message per event to stdout. Machine mode emits a
// single-line JSON record per message for piping into other tools; human
// mode prints a multi-line block. Write errors (e.g. a closed pipe) are
// reported to the dispatcher but never retried.
type ConsoleSink struct {
	out     io.Writer
	machine bool
	log     *logger.Log
}

// NewConsoleSink creates a console sink writing to stdout.
func NewConsoleSink(mode string) *ConsoleSink {
	return NewConsoleSinkTo(os.Stdout, mode)
}

// NewConsoleSinkTo creates a console sink writing to the given writer.
func NewConsoleSinkTo(out io.Writer, mode string) *ConsoleSink {
	return &ConsoleSink{
		out:     out,
		machine: mode == "machine",
		log:     logger.GetLogger(),
	}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Write(_ context.Context, msg models.NormalizedMessage) error {
	var buf bytes.Buffer

	if s.machine {
		buf.WriteString(`{"stream":"`)
		buf.WriteString(string(msg.Stream))
		buf.WriteString(`","symbol":"`)
		buf.WriteString(msg.Symbol)
		buf.WriteString(`","data":`)
		buf.Write(msg.PayloadJSON())
		buf.WriteString("}\n")
	} else {
		fmt.Fprintf(&buf, "\n--- [%s/%s] Data Received ---\n",
			strings.ToUpper(string(msg.Stream)), msg.Symbol)
		var indented bytes.Buffer
		if err := json.Indent(&indented, msg.PayloadJSON(), "", "  "); err != nil {
			return fmt.Errorf("failed to format payload: %w", err)
		}
		buf.Write(indented.Bytes())
		buf.WriteByte('\n')
	}

	n, err := s.out.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("console write failed: %w", err)
	}
	logger.IncrementSinkWrite(s.Name(), n)
	return nil
}

func (s *ConsoleSink) Flush() error { return nil }
func (s *ConsoleSink) Close() error { return nil }
