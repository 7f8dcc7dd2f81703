package repository

import (
	"context"
	"math"
	"time"

	"FMPull/internal/domain/models"
	pkgkafka "FMPull/pkg/kafka"
)

// RecordMessage is the Kafka value for one (series, key) record.
type RecordMessage struct {
	Series      string       `json:"series"`
	Symbol      string       `json:"symbol"`
	Rows        []models.Row `json:"rows,omitempty"`
	Object      models.Row   `json:"object,omitempty"`
	PublishedAt time.Time    `json:"published_at"`
}

// SummaryMessage closes a dataset on the topic.
type SummaryMessage struct {
	Symbols     []string       `json:"symbols"`
	Series      []string       `json:"series"`
	Summary     models.Summary `json:"summary"`
	PublishedAt time.Time      `json:"published_at"`
}

// KafkaPublisher sends one message per record keyed by symbol, then a summary.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	now      func() time.Time
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, now: time.Now}
}

func (p *KafkaPublisher) PublishDataset(ctx context.Context, ds *models.CleanedDataset) error {
	at := p.now().UTC()
	var msgs []pkgkafka.Message
	for _, name := range ds.SeriesOrder {
		if frame, ok := ds.Composite[name]; ok {
			msgs = append(msgs, pkgkafka.Message{
				Key:   []byte(name),
				Value: RecordMessage{Series: name, Rows: finiteRows(frame.Rows), PublishedAt: at},
			})
			continue
		}
		for _, sym := range ds.Symbols {
			rec := ds.Get(name, sym)
			if rec == nil {
				continue
			}
			m := RecordMessage{Series: name, Symbol: sym, Object: rec.Object, PublishedAt: at}
			if rec.Frame != nil {
				m.Rows = rec.Frame.Rows
			}
			msgs = append(msgs, pkgkafka.Message{Key: []byte(sym), Value: m})
		}
	}
	msgs = append(msgs, pkgkafka.Message{
		Key: []byte("summary"),
		Value: SummaryMessage{
			Symbols:     ds.Symbols,
			Series:      ds.SeriesOrder,
			Summary:     ds.Summary,
			PublishedAt: at,
		},
	})
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// finiteRows replaces NaN cells with nil so rows can be JSON encoded.
func finiteRows(rows []models.Row) []models.Row {
	out := make([]models.Row, len(rows))
	for i, r := range rows {
		c := make(models.Row, len(r))
		for k, v := range r {
			if f, ok := v.(float64); ok && math.IsNaN(f) {
				c[k] = nil
				continue
			}
			c[k] = v
		}
		out[i] = c
	}
	return out
}
