package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"binflow/models"
)

func consoleMessage() models.NormalizedMessage {
	return models.NormalizedMessage{
		Stream: models.StreamTicker,
		Symbol: "BTCUSDT",
		Fields: []models.Field{
			{Name: "last_price", Value: "42000.5"},
			{Name: "high_price", Value: "42500.0"},
		},
	}
}

func TestConsoleMachineMode(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSinkTo(&buf, "machine")

	if err := sink.Write(context.Background(), consoleMessage()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := sink.Write(context.Background(), consoleMessage()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("machine mode should emit one line per message, got %d", len(lines))
	}

	var record struct {
		Stream string            `json:"stream"`
		Symbol string            `json:"symbol"`
		Data   map[string]string `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("machine line is not valid JSON: %v", err)
	}
	if record.Stream != "ticker" || record.Symbol != "BTCUSDT" {
		t.Errorf("unexpected envelope: %+v", record)
	}
	if record.Data["last_price"] != "42000.5" {
		t.Errorf("unexpected data: %v", record.Data)
	}
}

func TestConsoleHumanMode(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSinkTo(&buf, "human")

	if err := sink.Write(context.Background(), consoleMessage()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "--- [TICKER/BTCUSDT] Data Received ---") {
		t.Errorf("missing banner: %q", out)
	}
	if !strings.Contains(out, "  \"last_price\": \"42000.5\"") {
		t.Errorf("payload not indented: %q", out)
	}
}
