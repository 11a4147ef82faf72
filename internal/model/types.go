package model

const (
	EventReceiveMessage  = "receiveMessage"
	EventPendingMessages = "pendingMessages"
	EventNewNotification = "newNotification"
)

type ChatMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"receiver"`
	Body      string `json:"message"`
	CreatedAt int64  `json:"createdAt"`
}

type NotificationKind string

const (
	NotificationComment       NotificationKind = "comment"
	NotificationLike          NotificationKind = "like"
	NotificationFollow        NotificationKind = "follow"
	NotificationFriendRequest NotificationKind = "friendRequest"
	NotificationMessage       NotificationKind = "message"
)

func (k NotificationKind) Valid() bool {
	switch k {
	case NotificationComment, NotificationLike, NotificationFollow, NotificationFriendRequest, NotificationMessage:
		return true
	}
	return false
}

// Reference points at an entity owned by another service. It is carried
// through untouched.
type Reference struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type Notification struct {
	ID        string           `json:"id"`
	Recipient string           `json:"recipient"`
	Sender    string           `json:"sender"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	Reference *Reference       `json:"reference,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt int64            `json:"createdAt"`
}

type DeliveryKind string

const (
	DeliveryMessage      DeliveryKind = "message"
	DeliveryNotification DeliveryKind = "notification"
)

// Delivery is one routable payload. Exactly one of Message or Notification is
// set, matching Kind.
type Delivery struct {
	Kind         DeliveryKind  `json:"kind"`
	Message      *ChatMessage  `json:"message,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

func MessageDelivery(m ChatMessage) Delivery {
	return Delivery{Kind: DeliveryMessage, Message: &m}
}

func NotificationDelivery(n Notification) Delivery {
	return Delivery{Kind: DeliveryNotification, Notification: &n}
}

func (d Delivery) Recipient() string {
	switch d.Kind {
	case DeliveryMessage:
		if d.Message != nil {
			return d.Message.Recipient
		}
	case DeliveryNotification:
		if d.Notification != nil {
			return d.Notification.Recipient
		}
	}
	return ""
}

// LiveEvent is the event name used when the recipient is online.
func (d Delivery) LiveEvent() string {
	if d.Kind == DeliveryNotification {
		return EventNewNotification
	}
	return EventReceiveMessage
}

// ReplayEvent is the event name used when flushing a queued delivery.
func (d Delivery) ReplayEvent() string {
	if d.Kind == DeliveryNotification {
		return EventNewNotification
	}
	return EventPendingMessages
}

// Body is the value emitted on the wire.
func (d Delivery) Body() any {
	if d.Kind == DeliveryNotification {
		return d.Notification
	}
	return d.Message
}

func (d Delivery) Valid() bool {
	switch d.Kind {
	case DeliveryMessage:
		return d.Message != nil && d.Notification == nil
	case DeliveryNotification:
		return d.Notification != nil && d.Message == nil
	}
	return false
}
