package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/nft-ticket-protocol/internal/domain"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

type EventDoc struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	Description   string    `bson:"description"`
	Venue         string    `bson:"venue"`
	Category      string    `bson:"category"`
	Date          time.Time `bson:"date"`
	Organizer     string    `bson:"organizer"`
	PolicyID      string    `bson:"policy_id"`
	TicketPrice   int64     `bson:"ticket_price"`
	TotalTickets  int64     `bson:"total_tickets"`
	MintedTickets int64     `bson:"minted_tickets"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func toDoc(e domain.Event) EventDoc {
	return EventDoc{
		ID:            e.ID.String(),
		Name:          e.Name,
		Description:   e.Description,
		Venue:         e.Venue,
		Category:      e.Category,
		Date:          e.Date,
		Organizer:     e.Organizer,
		PolicyID:      e.PolicyID,
		TicketPrice:   int64(e.TicketPrice),
		TotalTickets:  e.TotalTickets,
		MintedTickets: e.MintedTickets,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.CreatedAt,
	}
}

func (d EventDoc) toDomain() domain.Event {
	id, _ := uuid.Parse(d.ID)
	return domain.Event{
		ID:            id,
		Name:          d.Name,
		Description:   d.Description,
		Venue:         d.Venue,
		Category:      d.Category,
		Date:          d.Date.UTC(),
		Organizer:     d.Organizer,
		PolicyID:      d.PolicyID,
		TicketPrice:   domain.Lovelace(d.TicketPrice),
		TotalTickets:  d.TotalTickets,
		MintedTickets: d.MintedTickets,
		CreatedAt:     d.CreatedAt.UTC(),
	}
}

func (c *CatalogRepository) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	var doc EventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Event{}, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to get event")
		return domain.Event{}, err
	}
	return doc.toDomain(), nil
}

func (c *CatalogRepository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	cur, err := c.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []EventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	events := make([]domain.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.toDomain())
	}
	return events, nil
}

func (c *CatalogRepository) CreateEvent(ctx context.Context, event domain.Event) error {
	_, err := c.coll.InsertOne(ctx, toDoc(event))
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrapf(domain.ErrConflict, "event %s exists", event.ID)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to create event")
		return err
	}
	return nil
}

// ReserveSerials atomically allocates n consecutive serial numbers and returns the first.
func (c *CatalogRepository) ReserveSerials(ctx context.Context, id uuid.UUID, n int64) (int64, error) {
	if n <= 0 {
		return 0, errors.Wrap(domain.ErrInvalidInput, "count must be positive")
	}
	filter := bson.M{
		"_id": id.String(),
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$minted_tickets", n}},
			"$total_tickets",
		}},
	}
	update := bson.M{
		"$inc": bson.M{"minted_tickets": n},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	var doc EventDoc
	err := c.coll.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := c.GetEvent(ctx, id); getErr != nil {
			return 0, getErr
		}
		return 0, errors.Wrapf(domain.ErrSoldOut, "event %s cannot mint %d more", id, n)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to reserve serials")
		return 0, err
	}
	return doc.MintedTickets - n + 1, nil
}

// ReleaseSerials returns n serials starting at first to the pool, provided no later
// reservation has been made since.
func (c *CatalogRepository) ReleaseSerials(ctx context.Context, id uuid.UUID, first, n int64) (bool, error) {
	if n <= 0 {
		return false, nil
	}
	filter := bson.M{"_id": id.String(), "minted_tickets": first + n - 1}
	update := bson.M{
		"$inc": bson.M{"minted_tickets": -n},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		c.logger.WithError(err).Error("failed to release serials")
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (c *CatalogRepository) Ping(ctx context.Context) error {
	return c.coll.Database().Client().Ping(ctx, nil)
}
