package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogDataFlowEntry(t *testing.T) {
	var buf bytes.Buffer
	l := Logger()
	l.SetOutput(&buf)

	LogDataFlowEntry(l.WithComponent("parquet_sink"), "parquet_batch", "local_part", 42, "parquet_records")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("data flow entry is not one JSON line: %v", err)
	}
	if record["source"] != "parquet_batch" || record["destination"] != "local_part" {
		t.Errorf("unexpected stages: %v", record)
	}
	if record["record_count"] != float64(42) {
		t.Errorf("record_count = %v, want 42", record["record_count"])
	}
	if record["flow_type"] != "data_flow" {
		t.Errorf("flow_type = %v", record["flow_type"])
	}
	if record["component"] != "parquet_sink" {
		t.Errorf("component = %v", record["component"])
	}
}

func TestConfigureRejectsBadLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	l := Logger()
	if err := l.Configure("verbose", "json", "stderr", 0); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestConfigureRejectsBadFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	l := Logger()
	if err := l.Configure("info", "xml", "stderr", 0); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}

func TestConfigureLevelEnvOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	l := Logger()
	if err := l.Configure("warn", "json", "stderr", 0); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	l.SetOutput(&buf)

	l.WithComponent("test").Debug("visible at debug level")
	if !strings.Contains(buf.String(), "visible at debug level") {
		t.Error("LOG_LEVEL env override should win over the configured level")
	}
}
