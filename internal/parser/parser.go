// Package parser decodes inbound stream frames into typed records.
//
// Frames arrive as JSON envelopes carrying an eventType discriminator and a
// body payload. Malformed frames are logged and discarded; parsing never
// fails upward, so a bad frame can only ever cost itself.
package parser

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/batulgn/gipfeed/internal/models"
)

// eventTimeLayouts are tried in order when parsing venue timestamps.
var eventTimeLayouts = []string{
	models.TimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Message is the classified result of one frame. A zero Message means the
// frame was ignorable (unknown event kind or discarded as malformed).
type Message struct {
	Trade *models.TradeRecord
	Board *models.BoardSnapshot
}

// Parser routes envelopes by event kind to the trade or board decoder.
type Parser struct {
	tradeEvent string
	boardEvent string
	log        *logrus.Logger
	now        func() time.Time
}

// New creates a Parser routing the two given event kinds.
func New(tradeEvent, boardEvent string, log *logrus.Logger) *Parser {
	return &Parser{
		tradeEvent: tradeEvent,
		boardEvent: boardEvent,
		log:        log,
		now:        time.Now,
	}
}

type envelope struct {
	EventType string          `json:"eventType"`
	Time      string          `json:"time"`
	Body      json.RawMessage `json:"body"`
}

// Parse classifies one raw frame. It never returns an error: malformed input
// is logged and yields a zero Message.
func (p *Parser) Parse(raw []byte) Message {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		p.log.WithError(err).Warnf("Discarding malformed frame: %s", truncate(raw, 180))
		return Message{}
	}

	switch env.EventType {
	case p.tradeEvent:
		return Message{Trade: p.parseTrade(env.Body)}
	case p.boardEvent:
		return Message{Board: p.parseBoard(&env)}
	default:
		// Other event kinds on the channel are not ours to handle.
		return Message{}
	}
}

// parseTrade validates and coerces a trade body. Missing or uncoercible
// required fields discard the message.
func (p *Parser) parseTrade(body json.RawMessage) *models.TradeRecord {
	var raw struct {
		ContractName string  `json:"contractName"`
		Time         *string `json:"time"`
		Price        any     `json:"price"`
		Quantity     any     `json:"quantity"`
		Region       string  `json:"region"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		p.log.WithError(err).Warn("Discarding trade frame with unexpected body shape")
		return nil
	}

	if raw.ContractName == "" || raw.Time == nil || raw.Price == nil || raw.Quantity == nil {
		p.log.Warnf("Discarding trade frame missing required fields (contract=%q)", raw.ContractName)
		return nil
	}

	price, ok := toFloat(raw.Price)
	if !ok || price <= 0 {
		p.log.Warnf("Discarding trade frame with bad price %v (contract=%s)", raw.Price, raw.ContractName)
		return nil
	}
	quantity, ok := toFloat(raw.Quantity)
	if !ok || quantity <= 0 {
		p.log.Warnf("Discarding trade frame with bad quantity %v (contract=%s)", raw.Quantity, raw.ContractName)
		return nil
	}

	ingestedAt := p.now()
	eventTime, substituted := parseEventTime(*raw.Time, ingestedAt)
	if substituted {
		p.log.Warnf("Unparsable trade time %q, substituting ingest time (contract=%s)", *raw.Time, raw.ContractName)
	}

	return &models.TradeRecord{
		ContractName:    raw.ContractName,
		Time:            eventTime,
		TimeSubstituted: substituted,
		Price:           price,
		Quantity:        quantity,
		Region:          raw.Region,
		IngestedAt:      ingestedAt,
	}
}

// parseBoard validates a board body. The nested board-information object and
// the instrument name are required; a non-numeric value in any numeric field
// becomes a null rather than an error.
func (p *Parser) parseBoard(env *envelope) *models.BoardSnapshot {
	var raw struct {
		Name              string         `json:"name"`
		DeliveryDateStart string         `json:"deliveryDateStart"`
		BoardInformation  map[string]any `json:"boardInformation"`
		BestBuyPrice      any            `json:"bestBuyPrice"`
		BestSellPrice     any            `json:"bestSellPrice"`
	}
	if err := json.Unmarshal(env.Body, &raw); err != nil {
		p.log.WithError(err).Warn("Discarding board frame with unexpected body shape")
		return nil
	}

	if raw.BoardInformation == nil || raw.Name == "" {
		p.log.Warnf("Discarding board frame without board information (contract=%q)", raw.Name)
		return nil
	}

	ts := raw.DeliveryDateStart
	if ts == "" {
		ts = env.Time
	}
	if ts == "" {
		ts = p.now().Format(models.TimeLayout)
	}

	return &models.BoardSnapshot{
		ContractName:  raw.Name,
		Time:          ts,
		AveragePrice:  numField(raw.BoardInformation, "averagePrice"),
		MinPrice:      numField(raw.BoardInformation, "minPrice"),
		MaxPrice:      numField(raw.BoardInformation, "maxPrice"),
		MCP:           numField(raw.BoardInformation, "mcp"),
		LastPrice:     numField(raw.BoardInformation, "lastPrice"),
		Total:         numField(raw.BoardInformation, "total"),
		Volume:        numField(raw.BoardInformation, "volume"),
		BestBuyPrice:  toFloatPtr(raw.BestBuyPrice),
		BestSellPrice: toFloatPtr(raw.BestSellPrice),
	}
}

// parseEventTime parses a venue timestamp, substituting fallback when no
// layout matches.
func parseEventTime(value string, fallback time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range eventTimeLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts, false
		}
	}
	return fallback, true
}

// toFloat coerces a decoded JSON value to a finite float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toFloatPtr is toFloat for optional fields: anything non-numeric is nil.
func toFloatPtr(v any) *float64 {
	if f, ok := toFloat(v); ok {
		return &f
	}
	return nil
}

// numField maps one optional numeric sub-field out of the board object.
func numField(m map[string]any, key string) *float64 {
	v, exists := m[key]
	if !exists {
		return nil
	}
	return toFloatPtr(v)
}

func truncate(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}
