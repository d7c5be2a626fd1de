package writer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appconfig "binflow/config"
	"binflow/models"
)

func TestSplitStateKey(t *testing.T) {
	cases := []struct {
		key    string
		stream models.StreamKind
		symbol string
		ok     bool
	}{
		{"ticker_btcusdt", models.StreamTicker, "BTCUSDT", true},
		{"order-book_ethusdt", models.StreamOrderBook, "ETHUSDT", true},
		{"klines_solusdt", models.StreamKlines, "SOLUSDT", true},
		{"nounderscores", "", "", false},
		{"candles_btcusdt", "", "", false},
	}
	for _, c := range cases {
		stream, symbol, ok := splitStateKey(c.key)
		if ok != c.ok || stream != c.stream || symbol != c.symbol {
			t.Errorf("splitStateKey(%q) = %s, %s, %v; want %s, %s, %v",
				c.key, stream, symbol, ok, c.stream, c.symbol, c.ok)
		}
	}
}

func TestS3ObjectKey(t *testing.T) {
	sink := &S3Sink{cfg: appconfig.S3SinkConfig{Prefix: "binance"}}
	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	key := sink.objectKey(models.StreamTrades, "BTCUSDT", 2, ts)
	if key != "binance/trades/btcusdt/20240315103000_2.parquet" {
		t.Errorf("unexpected object key: %s", key)
	}

	sink.cfg.Prefix = ""
	key = sink.objectKey(models.StreamTicker, "ETHUSDT", 1, ts)
	if strings.HasPrefix(key, "/") {
		t.Errorf("object key should not start with a slash: %s", key)
	}
}

// A hung endpoint must not hold Write past the caller's deadline: the
// dispatcher's bounded per-write timeout has to reach the upload.
func TestS3WriteHonorsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Never respond; the handler returns only when the client gives up.
		// Drain the body first: the server only watches for the client
		// disconnect (which cancels r.Context) once the body is consumed.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := appconfig.S3SinkConfig{
		Enabled:         true,
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		PathStyle:       true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		BatchSize:       1,
		Compression:     "snappy",
	}
	sink, err := NewS3Sink(context.Background(), cfg, "binflow", "test")
	if err != nil {
		t.Fatalf("NewS3Sink failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = sink.Write(ctx, parquetMessage(0))
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Write against a hung endpoint should fail")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("Write blocked %s past a 200ms deadline", elapsed)
	}
}
