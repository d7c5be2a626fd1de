package models

import (
	"encoding/json"
	"testing"
)

func TestParseStreamKind(t *testing.T) {
	cases := map[string]StreamKind{
		"ticker":      StreamTicker,
		"Trades":      StreamTrades,
		" order-book": StreamOrderBook,
		"KLINES":      StreamKlines,
	}
	for in, want := range cases {
		got, err := ParseStreamKind(in)
		if err != nil {
			t.Errorf("ParseStreamKind(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseStreamKind(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseStreamKind("candles"); err == nil {
		t.Error("expected error for unknown stream kind")
	}
}

func TestSubscriptionStreamPath(t *testing.T) {
	cases := []struct {
		sub  Subscription
		want string
	}{
		{Subscription{Symbol: "BTCUSDT", Stream: StreamTicker}, "btcusdt@ticker"},
		{Subscription{Symbol: "BTCUSDT", Stream: StreamTrades}, "btcusdt@aggTrade"},
		{Subscription{Symbol: "ETHUSDT", Stream: StreamOrderBook}, "ethusdt@depth"},
		{Subscription{Symbol: "ETHUSDT", Stream: StreamKlines, Interval: "5m"}, "ethusdt@kline_5m"},
	}
	for _, c := range cases {
		if got := c.sub.StreamPath(); got != c.want {
			t.Errorf("StreamPath() = %s, want %s", got, c.want)
		}
	}
}

func TestSubscriptionKeyAndTag(t *testing.T) {
	sub := Subscription{Symbol: "BTCUSDT", Stream: StreamOrderBook}
	if got := sub.Key(); got != "order-book_btcusdt" {
		t.Errorf("Key() = %s", got)
	}
	if got := sub.Tag(); got != "ORDER-BOOK/BTCUSDT" {
		t.Errorf("Tag() = %s", got)
	}
}

func TestPayloadJSONPreservesOrder(t *testing.T) {
	msg := NormalizedMessage{
		Fields: []Field{
			{Name: "zeta", Value: "1"},
			{Name: "alpha", Value: "2"},
			{Name: "mid", Value: "3"},
		},
	}
	want := `{"zeta":"1","alpha":"2","mid":"3"}`
	if got := string(msg.PayloadJSON()); got != want {
		t.Errorf("PayloadJSON() = %s, want %s", got, want)
	}
}

func TestPayloadJSONRawFields(t *testing.T) {
	msg := NormalizedMessage{
		Fields: []Field{
			{Name: "lastUpdateId", Value: "42"},
			{Name: "bids", Value: `[["1.0","2.0"]]`, Raw: true},
		},
	}
	var decoded struct {
		LastUpdateID string     `json:"lastUpdateId"`
		Bids         [][]string `json:"bids"`
	}
	if err := json.Unmarshal(msg.PayloadJSON(), &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if len(decoded.Bids) != 1 || decoded.Bids[0][0] != "1.0" {
		t.Errorf("raw bids not emitted as nested arrays: %s", msg.PayloadJSON())
	}
}

func TestMessageKeyMatchesSubscription(t *testing.T) {
	sub := Subscription{Symbol: "BTCUSDT", Stream: StreamTicker}
	msg := NormalizedMessage{Stream: StreamTicker, Symbol: "BTCUSDT"}
	if msg.Key() != sub.Key() {
		t.Errorf("message key %s does not match subscription key %s", msg.Key(), sub.Key())
	}
}

func TestLookup(t *testing.T) {
	msg := NormalizedMessage{Fields: []Field{{Name: "price", Value: "100.5"}}}
	if v, ok := msg.Lookup("price"); !ok || v != "100.5" {
		t.Errorf("Lookup(price) = %q, %v", v, ok)
	}
	if _, ok := msg.Lookup("missing"); ok {
		t.Error("Lookup should miss unknown fields")
	}
}
