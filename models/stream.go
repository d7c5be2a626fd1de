package models

import (
	"fmt"
	"strings"
)

// StreamKind identifies one category of Binance market data.
type StreamKind string

const (
	StreamTicker    StreamKind = "ticker"
	StreamTrades    StreamKind = "trades"
	StreamOrderBook StreamKind = "order-book"
	StreamKlines    StreamKind = "klines"
)

// ParseStreamKind validates a user supplied stream name.
func ParseStreamKind(s string) (StreamKind, error) {
	switch StreamKind(strings.ToLower(strings.TrimSpace(s))) {
	case StreamTicker:
		return StreamTicker, nil
	case StreamTrades:
		return StreamTrades, nil
	case StreamOrderBook:
		return StreamOrderBook, nil
	case StreamKlines:
		return StreamKlines, nil
	}
	return "", fmt.Errorf("unknown stream kind %q", s)
}

func (k StreamKind) String() string { return string(k) }

// Suffix returns the Binance websocket stream suffix for the kind.
// klines requires the configured interval, e.g. "@kline_1m".
func (k StreamKind) Suffix(interval string) string {
	switch k {
	case StreamTicker:
		return "@ticker"
	case StreamTrades:
		return "@aggTrade"
	case StreamOrderBook:
		return "@depth"
	case StreamKlines:
		return "@kline_" + interval
	}
	return ""
}

// Subscription is one (symbol, stream kind) feed request. Interval is only
// meaningful for klines. SampleLimit of zero means unlimited.
type Subscription struct {
	Symbol      string
	Stream      StreamKind
	Interval    string
	SampleLimit int
}

// StreamPath is the path segment appended to the websocket base URL,
// e.g. "btcusdt@kline_1m".
func (s Subscription) StreamPath() string {
	return strings.ToLower(s.Symbol) + s.Stream.Suffix(s.Interval)
}

// Tag is the log identifier for the subscription, e.g. "TICKER/BTCUSDT".
func (s Subscription) Tag() string {
	return strings.ToUpper(string(s.Stream)) + "/" + s.Symbol
}

// Key identifies the sink state bucket for the subscription,
// e.g. "ticker_btcusdt".
func (s Subscription) Key() string {
	return string(s.Stream) + "_" + strings.ToLower(s.Symbol)
}
