package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rideline/rideline/internal/domain"
	"github.com/rideline/rideline/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	ActorID   uuid.UUID `bson:"actor_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, actorID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		ActorID:   actorID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogHold(ctx context.Context, hold *domain.Hold) error {
	data := map[string]interface{}{
		"hold_ref":   hold.Ref,
		"trip_id":    hold.TripID,
		"seat_no":    hold.SeatNo,
		"legs":       hold.Legs,
		"ttl_class":  string(hold.Class),
		"expires_at": hold.ExpiresAt.Format(time.RFC3339),
	}
	return a.LogEvent(ctx, "hold.created", hold.OperatorID, data)
}

func (a *AuditLogger) LogBooking(ctx context.Context, operatorID uuid.UUID, b *domain.Booking) error {
	data := map[string]interface{}{
		"booking_id":      b.ID,
		"trip_id":         b.TripID,
		"origin_seq":      b.OriginSeq,
		"destination_seq": b.DestinationSeq,
		"status":          b.Status,
		"total":           b.TotalAmount,
	}
	return a.LogEvent(ctx, "booking.committed", operatorID, data)
}

func (a *AuditLogger) LogMaterialized(ctx context.Context, baseID, tripID uuid.UUID, serviceDate string) error {
	data := map[string]interface{}{
		"base_id":      baseID,
		"trip_id":      tripID,
		"service_date": serviceDate,
	}
	return a.LogEvent(ctx, "trip.materialized", baseID, data)
}
