package binance

import (
	"strings"
	"testing"

	"binflow/models"
)

func TestDecodeTicker(t *testing.T) {
	frame := []byte(`{"e":"24hrTicker","E":1700000000123,"s":"BTCUSDT",` +
		`"p":"-50.1","P":"-0.12","c":"42000.5","h":"42500.0","l":"41000.0",` +
		`"v":"1234.5","q":"51234567.8"}`)

	sub := models.Subscription{Symbol: "BTCUSDT", Stream: models.StreamTicker}
	msg, err := decodePayload(sub, frame)
	if err != nil {
		t.Fatalf("decodePayload failed: %v", err)
	}

	if msg.EventTime != 1700000000123 {
		t.Errorf("unexpected event time: %d", msg.EventTime)
	}
	if msg.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should be stamped")
	}

	wantOrder := []string{
		"price_change", "price_change_percent", "last_price", "high_price",
		"low_price", "total_volume_asset", "total_volume_quote", "event_time",
	}
	names := msg.FieldNames()
	if len(names) != len(wantOrder) {
		t.Fatalf("unexpected field count: %v", names)
	}
	for i, want := range wantOrder {
		if names[i] != want {
			t.Errorf("field %d = %s, want %s", i, names[i], want)
		}
	}

	if v, _ := msg.Lookup("last_price"); v != "42000.5" {
		t.Errorf("last_price = %s", v)
	}
	if v, _ := msg.Lookup("price_change_percent"); v != "-0.12" {
		t.Errorf("price_change_percent = %s", v)
	}
}

func TestDecodeDepth(t *testing.T) {
	frame := []byte(`{"e":"depthUpdate","E":1700000000456,"s":"ETHUSDT",` +
		`"U":100,"u":105,"b":[["2000.1","1.5"],["2000.0","3.0"]],"a":[["2000.2","0.7"]]}`)

	sub := models.Subscription{Symbol: "ETHUSDT", Stream: models.StreamOrderBook}
	msg, err := decodePayload(sub, frame)
	if err != nil {
		t.Fatalf("decodePayload failed: %v", err)
	}

	if v, _ := msg.Lookup("lastUpdateId"); v != "105" {
		t.Errorf("lastUpdateId = %s", v)
	}
	bids, _ := msg.Lookup("bids")
	if !strings.Contains(bids, `"2000.1"`) {
		t.Errorf("bids levels lost exchange encoding: %s", bids)
	}

	payload := string(msg.PayloadJSON())
	if !strings.Contains(payload, `"bids":[[`) {
		t.Errorf("payload should contain nested bid arrays: %s", payload)
	}
}

func TestDecodeDepthEmptyLevels(t *testing.T) {
	frame := []byte(`{"e":"depthUpdate","E":1700000000456,"s":"ETHUSDT","u":105}`)

	sub := models.Subscription{Symbol: "ETHUSDT", Stream: models.StreamOrderBook}
	msg, err := decodePayload(sub, frame)
	if err != nil {
		t.Fatalf("decodePayload failed: %v", err)
	}
	if v, _ := msg.Lookup("bids"); v != "[]" {
		t.Errorf("missing bids should decode to an empty array, got %s", v)
	}
}

func TestDecodeTrade(t *testing.T) {
	frame := []byte(`{"e":"aggTrade","E":1700000000789,"s":"BTCUSDT",` +
		`"p":"42000.5","q":"0.002","T":1700000000788,"m":true}`)

	sub := models.Subscription{Symbol: "BTCUSDT", Stream: models.StreamTrades}
	msg, err := decodePayload(sub, frame)
	if err != nil {
		t.Fatalf("decodePayload failed: %v", err)
	}

	if v, _ := msg.Lookup("price"); v != "42000.5" {
		t.Errorf("price = %s", v)
	}
	if v, _ := msg.Lookup("trade_time"); v != "1700000000788" {
		t.Errorf("trade_time = %s", v)
	}
	if v, _ := msg.Lookup("is_buyer_maker"); v != "true" {
		t.Errorf("is_buyer_maker = %s", v)
	}
}

func TestDecodeKline(t *testing.T) {
	frame := []byte(`{"e":"kline","E":1700000001000,"s":"BTCUSDT","k":{` +
		`"t":1700000000000,"T":1700000059999,"s":"BTCUSDT","i":"1m",` +
		`"o":"41900.0","c":"42000.5","h":"42010.0","l":"41890.0",` +
		`"v":"12.5","n":150,"x":false,"q":"524000.1"}}`)

	sub := models.Subscription{Symbol: "BTCUSDT", Stream: models.StreamKlines, Interval: "1m"}
	msg, err := decodePayload(sub, frame)
	if err != nil {
		t.Fatalf("decodePayload failed: %v", err)
	}

	if v, _ := msg.Lookup("interval"); v != "1m" {
		t.Errorf("interval = %s", v)
	}
	if v, _ := msg.Lookup("open_price"); v != "41900.0" {
		t.Errorf("open_price = %s", v)
	}
	if v, _ := msg.Lookup("number_of_trades"); v != "150" {
		t.Errorf("number_of_trades = %s", v)
	}
	if v, _ := msg.Lookup("is_kline_closed"); v != "false" {
		t.Errorf("is_kline_closed = %s", v)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	sub := models.Subscription{Symbol: "BTCUSDT", Stream: models.StreamTicker}
	if _, err := decodePayload(sub, []byte(`{"E":`)); err == nil {
		t.Error("expected error for truncated frame")
	}
	if _, err := decodePayload(sub, []byte(`{"s":"BTCUSDT"}`)); err == nil {
		t.Error("expected error for frame without event time")
	}
}
