// Package notify turns realtime push events into displayable notifications
// and fans them out to subscribers.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind categorises a notification for display.
type Kind string

const (
	KindMatch   Kind = "match"
	KindLike    Kind = "like"
	KindGeneric Kind = "generic"
)

// Sender is the user who triggered a push event.
type Sender struct {
	ID     string `json:"_id,omitempty"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Event is the payload of an inbound notification push.
type Event struct {
	Type   string  `json:"type"`
	Sender *Sender `json:"sender,omitempty"`
}

// Notification is a transient message ready to be shown.
type Notification struct {
	Kind       Kind
	Title      string
	Body       string
	SenderName string
	ReceivedAt time.Time
}

const unknownSender = "Someone"

// FromEvent maps a push event to a notification. Unrecognised types become
// a generic notice.
func FromEvent(ev Event) Notification {
	name := unknownSender
	if ev.Sender != nil && ev.Sender.Name != "" {
		name = ev.Sender.Name
	}

	n := Notification{SenderName: name, ReceivedAt: time.Now()}
	switch ev.Type {
	case "match":
		n.Kind = KindMatch
		n.Title = "It's a Match!"
		n.Body = fmt.Sprintf("You have a new match with %s.", name)
	case "like":
		n.Kind = KindLike
		n.Title = "Someone liked you"
		n.Body = fmt.Sprintf("%s liked you!", name)
	default:
		n.Kind = KindGeneric
		n.Title = "New notification"
		n.Body = "You have a new notification."
	}
	return n
}

// Bus is a publish/subscribe point for notifications. Publish never blocks:
// a subscriber whose buffer is full misses the notification.
type Bus struct {
	log logrus.FieldLogger

	mu     sync.RWMutex
	subs   map[int]chan Notification
	nextID int
}

// NewBus creates a bus with no subscribers. A nil log uses the standard
// logger.
func NewBus(log logrus.FieldLogger) *Bus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bus{log: log, subs: make(map[int]chan Notification)}
}

// Subscribe returns a channel of notifications and a cancel function that
// closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- n:
		default:
			b.log.WithFields(logrus.Fields{
				"subscriber": id,
				"kind":       n.Kind,
			}).Warn("notification dropped, subscriber full")
		}
	}
}
