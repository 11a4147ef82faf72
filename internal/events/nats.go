// Package events mirrors presence transitions onto NATS so other services
// (feeds, push) can react to users coming and going.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

const (
	SubjectOnlinePrefix  = "presence.online."
	SubjectOfflinePrefix = "presence.offline."
)

type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// PresenceEvent is the JSON body published for every transition.
type PresenceEvent struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
	At     int64  `json:"at"`
}

// publisher is the part of *nats.Conn used here.
type publisher interface {
	Publish(subj string, data []byte) error
}

type NATSPublisher struct {
	pub  publisher
	conn *nats.Conn
	now  func() time.Time
}

// Dial connects to NATS with unlimited reconnects.
func Dial(cfg Config) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url missing")
	}
	if cfg.Name == "" {
		cfg.Name = "social-realtime"
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "nats connect %s", cfg.URL)
	}
	return &NATSPublisher{pub: nc, conn: nc, now: time.Now}, nil
}

func Subject(userID string, online bool) string {
	if online {
		return SubjectOnlinePrefix + userID
	}
	return SubjectOfflinePrefix + userID
}

func (p *NATSPublisher) PublishPresence(_ context.Context, userID string, online bool) error {
	data, err := json.Marshal(PresenceEvent{UserID: userID, Online: online, At: p.now().UnixMilli()})
	if err != nil {
		return errors.Wrap(err, "encode presence event")
	}
	subj := Subject(userID, online)
	if err := p.pub.Publish(subj, data); err != nil {
		return errors.Wrapf(err, "publish %s", subj)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
