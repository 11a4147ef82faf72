package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"social-realtime/internal/model"
)

type fakeCollection struct {
	docs []interface{}
	err  error
}

func (f *fakeCollection) InsertOne(_ context.Context, doc interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, doc)
	return &mongo.InsertOneResult{}, nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBuildMissedDelivery_Message(t *testing.T) {
	d := model.MessageDelivery(model.ChatMessage{ID: "m1", Sender: "a", Recipient: "b", Body: "hi", CreatedAt: 1700000000000})

	doc, err := buildMissedDelivery("b", d, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "b", doc.UserID)
	assert.Equal(t, "message", doc.Kind)
	assert.Equal(t, "m1", doc.PayloadID)
	assert.Equal(t, "a", doc.Sender)
	assert.Equal(t, "hi", doc.Message)
	assert.Nil(t, doc.Notification)
	assert.Equal(t, int64(1700000000000), doc.CreatedAt.UnixMilli())
	assert.Equal(t, fixedNow, doc.RecordedAt)
}

func TestBuildMissedDelivery_Notification(t *testing.T) {
	d := model.NotificationDelivery(model.Notification{
		ID: "n1", Recipient: "b", Sender: "a", Kind: model.NotificationComment, Message: "commented",
		Reference: &model.Reference{Kind: "Publication", ID: "p9"},
	})

	doc, err := buildMissedDelivery("b", d, fixedNow)
	require.NoError(t, err)
	require.NotNil(t, doc.Notification)
	assert.Equal(t, "comment", doc.Notification.Kind)
	assert.Equal(t, "Publication", doc.Notification.ReferenceKind)
	assert.Equal(t, "p9", doc.Notification.ReferenceID)
}

func TestBuildMissedDelivery_Invalid(t *testing.T) {
	_, err := buildMissedDelivery("b", model.Delivery{Kind: model.DeliveryMessage}, fixedNow)
	assert.Error(t, err)
}

func TestMongo_RecordMissed(t *testing.T) {
	coll := &fakeCollection{}
	m := &Mongo{coll: coll, now: func() time.Time { return fixedNow }}

	err := m.RecordMissed(context.Background(), "b", model.MessageDelivery(model.ChatMessage{ID: "m1", Recipient: "b"}))
	require.NoError(t, err)
	require.Len(t, coll.docs, 1)
	assert.Equal(t, "m1", coll.docs[0].(MissedDelivery).PayloadID)

	coll.err = errors.New("boom")
	err = m.RecordMissed(context.Background(), "b", model.MessageDelivery(model.ChatMessage{ID: "m2", Recipient: "b"}))
	assert.ErrorContains(t, err, "missed_deliveries")
}

func TestConfig_ValidateAndSetDefaults(t *testing.T) {
	c := Config{}
	assert.Error(t, c.ValidateAndSetDefaults())

	c = Config{URI: "mongodb://localhost:27017"}
	require.NoError(t, c.ValidateAndSetDefaults())
	assert.Equal(t, "social", c.Database)
	assert.Equal(t, 20, c.MaxPoolSize)
}
