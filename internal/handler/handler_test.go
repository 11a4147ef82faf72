package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"social-realtime/internal/model"
	"social-realtime/internal/presence"
)

type routed struct {
	recipient string
	delivery  model.Delivery
}

type signalled struct {
	userID  string
	event   string
	payload any
}

type fakePresence struct {
	outcome presence.Outcome
	online  map[string]int
	routed  []routed
	signals []signalled
}

func (f *fakePresence) Route(_ context.Context, recipientID string, d model.Delivery) presence.Outcome {
	f.routed = append(f.routed, routed{recipient: recipientID, delivery: d})
	return f.outcome
}

func (f *fakePresence) Signal(_ context.Context, userID, event string, payload any) int {
	f.signals = append(f.signals, signalled{userID: userID, event: event, payload: payload})
	return f.online[userID]
}

func (f *fakePresence) Status(userID string) presence.Status {
	n := f.online[userID]
	return presence.Status{UserID: userID, Active: n > 0, SocketCount: n}
}

func (f *fakePresence) OnlineUsers() []string {
	users := []string{}
	for u := range f.online {
		users = append(users, u)
	}
	return users
}

var testNow = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func newTestRouter(p *fakePresence, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	clock := clockwork.NewFakeClockAt(testNow)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set("userID", userID)
		}
		c.Next()
	})
	mh := &MessageHandler{Presence: p, Clock: clock}
	nh := &NotificationHandler{Presence: p, Clock: clock}
	ph := &PresenceHandler{Presence: p}
	r.POST("/messages", mh.Send)
	r.POST("/messages/:id/seen", mh.Seen)
	r.POST("/messages/:id/deleted", mh.Deleted)
	r.POST("/notifications", nh.Create)
	r.GET("/presence", ph.List)
	r.GET("/presence/:userId", ph.Get)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMessageHandler_Send(t *testing.T) {
	p := &fakePresence{outcome: presence.Queued}
	r := newTestRouter(p, "alice")

	w := do(t, r, http.MethodPost, "/messages", gin.H{"receiver": "bob", "message": "hi"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Message  model.ChatMessage `json:"message"`
		Delivery string            `json:"delivery"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Delivery)
	assert.Equal(t, "alice", resp.Message.Sender)
	assert.Equal(t, "bob", resp.Message.Recipient)
	assert.Equal(t, testNow.UnixMilli(), resp.Message.CreatedAt)
	assert.NotEmpty(t, resp.Message.ID)

	require.Len(t, p.routed, 1)
	assert.Equal(t, "bob", p.routed[0].recipient)
	assert.Equal(t, model.DeliveryMessage, p.routed[0].delivery.Kind)
}

func TestMessageHandler_SendValidation(t *testing.T) {
	p := &fakePresence{}
	r := newTestRouter(p, "alice")

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/messages", gin.H{"message": "hi"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/messages", gin.H{"receiver": "bob"}).Code)
	assert.Empty(t, p.routed)

	anon := newTestRouter(p, "")
	assert.Equal(t, http.StatusUnauthorized, do(t, anon, http.MethodPost, "/messages", gin.H{"receiver": "bob", "message": "hi"}).Code)
}

func TestMessageHandler_SeenAndDeletedAreLiveOnly(t *testing.T) {
	p := &fakePresence{online: map[string]int{"alice": 2}}
	r := newTestRouter(p, "bob")

	w := do(t, r, http.MethodPost, "/messages/m1/seen", gin.H{"sender": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"notified":2}`, w.Body.String())

	w = do(t, r, http.MethodPost, "/messages/m1/deleted", gin.H{"receiver": "carol"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"notified":0}`, w.Body.String())

	require.Len(t, p.signals, 2)
	assert.Equal(t, EventMessageSeen, p.signals[0].event)
	assert.Equal(t, gin.H{"messageId": "m1"}, p.signals[0].payload)
	assert.Equal(t, EventMessageDeleted, p.signals[1].event)
	assert.Empty(t, p.routed)
}

func TestNotificationHandler_Create(t *testing.T) {
	p := &fakePresence{outcome: presence.Delivered}
	r := newTestRouter(p, "alice")

	w := do(t, r, http.MethodPost, "/notifications", gin.H{
		"recipient": "bob",
		"kind":      "comment",
		"message":   "alice commented on your post",
		"reference": gin.H{"kind": "Publication", "id": "p1"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, p.routed, 1)
	n := p.routed[0].delivery.Notification
	require.NotNil(t, n)
	assert.Equal(t, "alice", n.Sender)
	assert.Equal(t, model.NotificationComment, n.Kind)
	assert.Equal(t, "p1", n.Reference.ID)
	assert.False(t, n.Read)
}

func TestNotificationHandler_SkipsSelfAndRejectsBadInput(t *testing.T) {
	p := &fakePresence{}
	r := newTestRouter(p, "alice")

	w := do(t, r, http.MethodPost, "/notifications", gin.H{"recipient": "alice", "kind": "like"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"delivery":"skipped"}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/notifications", gin.H{"recipient": "bob", "kind": "poke"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/notifications", gin.H{"recipient": "bob", "kind": "like", "reference": gin.H{"kind": "Comment"}}).Code)
	assert.Empty(t, p.routed)
}

func TestPresenceHandler(t *testing.T) {
	p := &fakePresence{online: map[string]int{"42": 2}}
	r := newTestRouter(p, "alice")

	w := do(t, r, http.MethodGet, "/presence/42", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":"42","active":true,"socketCount":2}`, w.Body.String())

	w = do(t, r, http.MethodGet, "/presence/7", nil)
	assert.JSONEq(t, `{"userId":"7","active":false,"socketCount":0}`, w.Body.String())

	w = do(t, r, http.MethodGet, "/presence", nil)
	assert.JSONEq(t, `{"users":["42"]}`, w.Body.String())
}
