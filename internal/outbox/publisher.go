package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rideline/rideline/internal/adapters/crdb"
	"github.com/rideline/rideline/internal/adapters/rabbit"
	"github.com/rideline/rideline/internal/observability"
)

// Publisher drains committed outbox records to the broker. At-least-once:
// a record is marked published only after a successful publish, and
// consumers dedupe on the record's dedupe key.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, 100)
	if err != nil {
		p.logger.Error("failed to fetch outbox records: ", err)
		return
	}
	if len(records) == 0 {
		observability.OutboxLag.Set(0)
		return
	}
	observability.OutboxLag.Set(time.Since(records[0].CreatedAt).Seconds())

	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithField("outbox_id", rec.ID).Error("outbox publish failed: ", err)
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.WithField("outbox_id", rec.ID).Error("failed to mark outbox record published: ", err)
		}
	}
}
