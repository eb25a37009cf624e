package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rideline/rideline/internal/domain"
	"github.com/rideline/rideline/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepository serves master data: trip bases, seat layouts, fare
// rules. Booking and materialization paths only ever read it; the insert
// methods exist for import tooling.
type CatalogRepository struct {
	bases   *mongo.Collection
	layouts *mongo.Collection
	fares   *mongo.Collection
	logger  observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		bases:   db.Collection("trip_bases"),
		layouts: db.Collection("layouts"),
		fares:   db.Collection("fare_rules"),
		logger:  logger,
	}
}

type TripBaseDoc struct {
	ID        uuid.UUID     `bson:"_id"`
	PatternID uuid.UUID     `bson:"pattern_id"`
	Active    bool          `bson:"active"`
	Weekdays  uint8         `bson:"weekdays"`
	ValidFrom *time.Time    `bson:"valid_from,omitempty"`
	ValidTo   *time.Time    `bson:"valid_to,omitempty"`
	Timezone  string        `bson:"timezone"`
	VehicleID uuid.UUID     `bson:"vehicle_id"`
	LayoutID  uuid.UUID     `bson:"layout_id"`
	Stops     []BaseStopDoc `bson:"stops"`
}

type BaseStopDoc struct {
	Seq    int       `bson:"seq"`
	StopID uuid.UUID `bson:"stop_id"`
	Arrive string    `bson:"arrive,omitempty"`
	Depart string    `bson:"depart,omitempty"`
}

type LayoutDoc struct {
	ID    uuid.UUID `bson:"_id"`
	Name  string    `bson:"name"`
	Seats []SeatDoc `bson:"seats"`
}

type SeatDoc struct {
	SeatNo   string `bson:"seat_no"`
	Disabled bool   `bson:"disabled,omitempty"`
}

type FareRuleDoc struct {
	PatternID uuid.UUID `bson:"_id"`
	PerLeg    float64   `bson:"per_leg"`
	Currency  string    `bson:"currency"`
}

func (c *CatalogRepository) GetTripBase(ctx context.Context, id uuid.UUID) (*domain.TripBase, error) {
	var doc TripBaseDoc
	err := c.bases.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		c.logger.Error("failed to get trip base", err)
		return nil, err
	}
	return baseFromDoc(&doc), nil
}

func (c *CatalogRepository) ListActiveBases(ctx context.Context) ([]domain.TripBase, error) {
	cur, err := c.bases.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var bases []domain.TripBase
	for cur.Next(ctx) {
		var doc TripBaseDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		bases = append(bases, *baseFromDoc(&doc))
	}
	return bases, cur.Err()
}

func (c *CatalogRepository) GetLayout(ctx context.Context, id uuid.UUID) (*domain.Layout, error) {
	var doc LayoutDoc
	err := c.layouts.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		c.logger.Error("failed to get layout", err)
		return nil, err
	}
	layout := &domain.Layout{ID: doc.ID, Name: doc.Name}
	for _, s := range doc.Seats {
		layout.Seats = append(layout.Seats, domain.LayoutSeat{SeatNo: s.SeatNo, Disabled: s.Disabled})
	}
	return layout, nil
}

func (c *CatalogRepository) GetFareRule(ctx context.Context, patternID uuid.UUID) (float64, error) {
	var doc FareRuleDoc
	err := c.fares.FindOne(ctx, bson.M{"_id": patternID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		c.logger.Error("failed to get fare rule", err)
		return 0, err
	}
	return doc.PerLeg, nil
}

// InsertTripBase loads master data, used by import tooling and tests.
func (c *CatalogRepository) InsertTripBase(ctx context.Context, doc TripBaseDoc) error {
	_, err := c.bases.InsertOne(ctx, doc)
	return err
}

func (c *CatalogRepository) InsertLayout(ctx context.Context, doc LayoutDoc) error {
	_, err := c.layouts.InsertOne(ctx, doc)
	return err
}

func (c *CatalogRepository) InsertFareRule(ctx context.Context, doc FareRuleDoc) error {
	_, err := c.fares.InsertOne(ctx, doc)
	return err
}

func baseFromDoc(doc *TripBaseDoc) *domain.TripBase {
	base := &domain.TripBase{
		ID:        doc.ID,
		PatternID: doc.PatternID,
		Active:    doc.Active,
		Weekdays:  doc.Weekdays,
		ValidFrom: doc.ValidFrom,
		ValidTo:   doc.ValidTo,
		Timezone:  doc.Timezone,
		VehicleID: doc.VehicleID,
		LayoutID:  doc.LayoutID,
	}
	for _, s := range doc.Stops {
		base.Stops = append(base.Stops, domain.BaseStop{Seq: s.Seq, StopID: s.StopID, Arrive: s.Arrive, Depart: s.Depart})
	}
	return base
}
