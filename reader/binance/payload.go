package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"binflow/models"
)

// tickerEvent mirrors the Binance 24hr ticker websocket event. Prices and
// volumes stay strings exactly as the exchange sends them.
type tickerEvent struct {
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	LastPrice          string `json:"c"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	AssetVolume        string `json:"v"`
	QuoteVolume        string `json:"q"`
}

// depthEvent mirrors the Binance diff depth websocket event.
type depthEvent struct {
	EventTime    int64           `json:"E"`
	Symbol       string          `json:"s"`
	LastUpdateID int64           `json:"u"`
	Bids         json.RawMessage `json:"b"`
	Asks         json.RawMessage `json:"a"`
}

// aggTradeEvent mirrors the Binance aggregated trade websocket event.
type aggTradeEvent struct {
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// klineEvent mirrors the Binance kline websocket event.
type klineEvent struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime   int64  `json:"t"`
		CloseTime   int64  `json:"T"`
		Symbol      string `json:"s"`
		Interval    string `json:"i"`
		OpenPrice   string `json:"o"`
		ClosePrice  string `json:"c"`
		HighPrice   string `json:"h"`
		LowPrice    string `json:"l"`
		AssetVolume string `json:"v"`
		TradeCount  int64  `json:"n"`
		Closed      bool   `json:"x"`
		QuoteVolume string `json:"q"`
	} `json:"k"`
}

// decodePayload parses one raw websocket frame into the normalized message
// for the subscription's stream kind. Field names and order follow the
// ingestor's storage schema for each kind.
func decodePayload(sub models.Subscription, frame []byte) (models.NormalizedMessage, error) {
	msg := models.NormalizedMessage{
		Stream:     sub.Stream,
		Symbol:     sub.Symbol,
		ReceivedAt: time.Now().UTC(),
	}

	switch sub.Stream {
	case models.StreamTicker:
		var evt tickerEvent
		if err := json.Unmarshal(frame, &evt); err != nil {
			return msg, fmt.Errorf("malformed ticker frame: %w", err)
		}
		if evt.EventTime == 0 {
			return msg, fmt.Errorf("ticker frame missing event time")
		}
		msg.EventTime = evt.EventTime
		msg.Fields = []models.Field{
			{Name: "price_change", Value: evt.PriceChange},
			{Name: "price_change_percent", Value: evt.PriceChangePercent},
			{Name: "last_price", Value: evt.LastPrice},
			{Name: "high_price", Value: evt.HighPrice},
			{Name: "low_price", Value: evt.LowPrice},
			{Name: "total_volume_asset", Value: evt.AssetVolume},
			{Name: "total_volume_quote", Value: evt.QuoteVolume},
			{Name: "event_time", Value: strconv.FormatInt(evt.EventTime, 10)},
		}

	case models.StreamOrderBook:
		var evt depthEvent
		if err := json.Unmarshal(frame, &evt); err != nil {
			return msg, fmt.Errorf("malformed depth frame: %w", err)
		}
		if evt.EventTime == 0 {
			return msg, fmt.Errorf("depth frame missing event time")
		}
		msg.EventTime = evt.EventTime
		msg.Fields = []models.Field{
			{Name: "lastUpdateId", Value: strconv.FormatInt(evt.LastUpdateID, 10)},
			{Name: "bids", Value: rawLevels(evt.Bids), Raw: true},
			{Name: "asks", Value: rawLevels(evt.Asks), Raw: true},
		}

	case models.StreamTrades:
		var evt aggTradeEvent
		if err := json.Unmarshal(frame, &evt); err != nil {
			return msg, fmt.Errorf("malformed trade frame: %w", err)
		}
		if evt.EventTime == 0 {
			return msg, fmt.Errorf("trade frame missing event time")
		}
		msg.EventTime = evt.EventTime
		msg.Fields = []models.Field{
			{Name: "event_time", Value: strconv.FormatInt(evt.EventTime, 10)},
			{Name: "price", Value: evt.Price},
			{Name: "quantity", Value: evt.Quantity},
			{Name: "trade_time", Value: strconv.FormatInt(evt.TradeTime, 10)},
			{Name: "is_buyer_maker", Value: strconv.FormatBool(evt.IsBuyerMaker)},
		}

	case models.StreamKlines:
		var evt klineEvent
		if err := json.Unmarshal(frame, &evt); err != nil {
			return msg, fmt.Errorf("malformed kline frame: %w", err)
		}
		if evt.EventTime == 0 {
			return msg, fmt.Errorf("kline frame missing event time")
		}
		msg.EventTime = evt.EventTime
		k := evt.Kline
		msg.Fields = []models.Field{
			{Name: "event_time", Value: strconv.FormatInt(evt.EventTime, 10)},
			{Name: "kline_start_time", Value: strconv.FormatInt(k.StartTime, 10)},
			{Name: "kline_close_time", Value: strconv.FormatInt(k.CloseTime, 10)},
			{Name: "symbol", Value: k.Symbol},
			{Name: "interval", Value: k.Interval},
			{Name: "open_price", Value: k.OpenPrice},
			{Name: "close_price", Value: k.ClosePrice},
			{Name: "high_price", Value: k.HighPrice},
			{Name: "low_price", Value: k.LowPrice},
			{Name: "base_asset_volume", Value: k.AssetVolume},
			{Name: "number_of_trades", Value: strconv.FormatInt(k.TradeCount, 10)},
			{Name: "is_kline_closed", Value: strconv.FormatBool(k.Closed)},
			{Name: "quote_asset_volume", Value: k.QuoteVolume},
		}

	default:
		return msg, fmt.Errorf("unknown stream kind %q", sub.Stream)
	}

	return msg, nil
}

// rawLevels keeps the exchange's own JSON encoding for bid/ask arrays so
// price strings pass through untouched.
func rawLevels(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "[]"
	}
	return string(raw)
}
