// Package archive records deliveries that reached a user's offline queue so
// that the rest of the platform can show them later (unread badges, inbox).
package archive

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"social-realtime/internal/model"
)

const (
	CollectionMissed = "missed_deliveries"

	defaultMaxPoolSize = 20
	defaultDatabase    = "social"
)

type Config struct {
	URI         string
	Database    string
	MaxPoolSize int
}

func (c *Config) ValidateAndSetDefaults() error {
	if c.URI == "" {
		return errors.New("mongo uri is required")
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	return nil
}

// MissedDelivery is the stored shape of one queued delivery.
type MissedDelivery struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty"`
	UserID       string              `bson:"user_id"`
	Kind         string              `bson:"kind"`
	PayloadID    string              `bson:"payload_id"`
	Sender       string              `bson:"sender"`
	Message      string              `bson:"message"`
	Notification *NotificationFields `bson:"notification,omitempty"`
	CreatedAt    time.Time           `bson:"created_at"`
	RecordedAt   time.Time           `bson:"recorded_at"`
}

type NotificationFields struct {
	Kind          string `bson:"kind"`
	ReferenceKind string `bson:"reference_kind,omitempty"`
	ReferenceID   string `bson:"reference_id,omitempty"`
}

// inserter is the part of *mongo.Collection the archive needs.
type inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

type Mongo struct {
	client *mongo.Client
	coll   inserter
	now    func() time.Time
}

// Connect dials MongoDB and pings it before returning.
func Connect(ctx context.Context, cfg Config) (*Mongo, error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	opts := options.Client().ApplyURI(cfg.URI).SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "mongo connect database=%s", cfg.Database)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrapf(err, "mongo ping database=%s", cfg.Database)
	}

	return &Mongo{
		client: client,
		coll:   client.Database(cfg.Database).Collection(CollectionMissed),
		now:    time.Now,
	}, nil
}

func (m *Mongo) RecordMissed(ctx context.Context, userID string, d model.Delivery) error {
	doc, err := buildMissedDelivery(userID, d, m.now())
	if err != nil {
		return err
	}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return errors.Wrapf(err, "insert %s", CollectionMissed)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

func buildMissedDelivery(userID string, d model.Delivery, now time.Time) (MissedDelivery, error) {
	if !d.Valid() {
		return MissedDelivery{}, errors.Errorf("invalid delivery kind %q", d.Kind)
	}

	doc := MissedDelivery{UserID: userID, Kind: string(d.Kind), RecordedAt: now.UTC()}
	switch d.Kind {
	case model.DeliveryMessage:
		doc.PayloadID = d.Message.ID
		doc.Sender = d.Message.Sender
		doc.Message = d.Message.Body
		doc.CreatedAt = time.UnixMilli(d.Message.CreatedAt).UTC()
	case model.DeliveryNotification:
		n := d.Notification
		doc.PayloadID = n.ID
		doc.Sender = n.Sender
		doc.Message = n.Message
		doc.CreatedAt = time.UnixMilli(n.CreatedAt).UTC()
		doc.Notification = &NotificationFields{Kind: string(n.Kind)}
		if n.Reference != nil {
			doc.Notification.ReferenceKind = n.Reference.Kind
			doc.Notification.ReferenceID = n.Reference.ID
		}
	}
	return doc, nil
}
