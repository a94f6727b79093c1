package ingester

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/batulgn/gipfeed/internal/aof"
	"github.com/batulgn/gipfeed/internal/models"
	"github.com/batulgn/gipfeed/internal/notify"
	"github.com/batulgn/gipfeed/internal/parser"
)

// Store is the subset of the persistence layer the pipeline writes to.
type Store interface {
	AppendTrade(rec *models.TradeRecord) error
	UpsertBoard(snap *models.BoardSnapshot) error
}

// Pipeline wires one channel's frames through parse, aggregate, and persist.
// HandleFrame is called from the connection's single reader, so processing
// within a channel is strictly sequential.
type Pipeline struct {
	parser *parser.Parser
	agg    *aof.Aggregator
	store  Store
	sink   notify.Sink
	log    *logrus.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(p *parser.Parser, agg *aof.Aggregator, store Store, sink notify.Sink, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		parser: p,
		agg:    agg,
		store:  store,
		sink:   sink,
		log:    log,
	}
}

// HandleFrame processes one raw frame. No failure here escalates: bad frames
// are discarded by the parser, and a dropped write is logged with every field
// needed to reconstruct the record from the append-only log.
func (pl *Pipeline) HandleFrame(raw []byte) {
	msg := pl.parser.Parse(raw)
	switch {
	case msg.Trade != nil:
		pl.handleTrade(msg.Trade)
	case msg.Board != nil:
		pl.handleBoard(msg.Board)
	}
}

func (pl *Pipeline) handleTrade(rec *models.TradeRecord) {
	rec.AOF1h = pl.agg.Update(rec.ContractName, rec.Time, rec.Price, rec.Quantity)

	if err := pl.store.AppendTrade(rec); err != nil {
		pl.log.WithError(err).WithFields(logrus.Fields{
			"contract": rec.ContractName,
			"time":     rec.Time.Format(models.TimeLayout),
			"price":    rec.Price,
			"quantity": rec.Quantity,
			"region":   rec.Region,
			"aof1h":    rec.AOF1h,
		}).Error("Trade write dropped")
	}

	if err := pl.sink.PublishTrade(context.Background(), rec); err != nil {
		pl.log.WithError(err).Warn("Trade notification failed")
	}
}

func (pl *Pipeline) handleBoard(snap *models.BoardSnapshot) {
	if err := pl.store.UpsertBoard(snap); err != nil {
		pl.log.WithError(err).WithFields(logrus.Fields{
			"contract": snap.ContractName,
			"time":     snap.Time,
		}).Error("Board write dropped")
	}
}
