package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/websearchtool/sitecrawl/internal/model"
)

// Message types, carried in the "type" header.
const (
	TypeDomainResult = "domain_result"
	TypeRunSummary   = "run_summary"
)

// ErrNoBrokers is returned by NewPublisher when no broker address is given.
var ErrNoBrokers = errors.New("no kafka brokers configured")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends finished crawl reports to a Kafka topic: one message per
// domain keyed by domain, followed by one run summary keyed by run ID.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewPublisher creates a publisher for topic on brokers. Keyed messages are
// hashed to partitions so all results for a domain stay ordered.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		return nil, errors.New("kafka topic is empty")
	}
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}), nil
}

// NewPublisherWithWriter builds a publisher on a custom writer (tests).
func NewPublisherWithWriter(writer messageWriter) *Publisher {
	return &Publisher{writer: writer, now: time.Now}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// DomainMessage is the value of a domain_result message.
type DomainMessage struct {
	RunID  string              `json:"run_id"`
	Result *model.DomainResult `json:"result"`
}

// RunSummary is the value of a run_summary message.
type RunSummary struct {
	RunID         string              `json:"run_id"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    time.Time           `json:"finished_at"`
	Seeds         []string            `json:"seeds"`
	DroppedSeeds  []model.DroppedSeed `json:"dropped_seeds,omitempty"`
	Domains       []string            `json:"domains"`
	URLs          int                 `json:"urls"`
	FailedDomains int                 `json:"failed_domains"`
	Cancelled     bool                `json:"cancelled,omitempty"`
}

// PublishReport writes every domain result and the run summary in a single
// batch.
func (p *Publisher) PublishReport(ctx context.Context, report *model.CrawlReport) error {
	msgs, err := p.messages(report)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish run %s: %w", report.ID, err)
	}
	return nil
}

func (p *Publisher) messages(report *model.CrawlReport) ([]kafka.Message, error) {
	now := p.now().UTC()
	domains := report.SortedDomains()
	msgs := make([]kafka.Message, 0, len(domains)+1)

	summary := RunSummary{
		RunID:         report.ID,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
		Seeds:         report.Seeds,
		DroppedSeeds:  report.DroppedSeeds,
		Domains:       make([]string, 0, len(domains)),
		URLs:          report.TotalURLs(),
		FailedDomains: report.FailedDomains(),
		Cancelled:     report.Cancelled,
	}

	for _, res := range domains {
		if res == nil {
			continue
		}
		summary.Domains = append(summary.Domains, res.Domain)
		msg, err := newMessage(TypeDomainResult, report.ID, res.Domain, DomainMessage{RunID: report.ID, Result: res}, now)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	msg, err := newMessage(TypeRunSummary, report.ID, report.ID, summary, now)
	if err != nil {
		return nil, err
	}
	return append(msgs, msg), nil
}

func newMessage(kind, runID, key string, v any, now time.Time) (kafka.Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(kind)},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}
