package sms

import (
	"context"
	"sync"
	"time"
)

// Message is one code captured by a DevOutbox.
type Message struct {
	Phone     string
	Code      string
	SentAt    time.Time
	ExpiresAt time.Time
}

// DevOutbox stands in for an SMS gateway in development: it keeps the latest
// code per phone until it expires and notifies listeners of every delivery.
// Never wire it in production.
type DevOutbox struct {
	ttl  time.Duration
	nowF func() time.Time

	mu        sync.RWMutex
	m         map[string]Message
	listeners map[int]chan Message
	nextID    int
}

// NewDevOutbox returns an outbox keeping codes for ttl.
func NewDevOutbox(ttl time.Duration) *DevOutbox {
	return &DevOutbox{
		ttl:       ttl,
		nowF:      func() time.Time { return time.Now().UTC() },
		m:         make(map[string]Message),
		listeners: make(map[int]chan Message),
	}
}

// SendOTP implements Sender.
func (o *DevOutbox) SendOTP(_ context.Context, phone, code string) error {
	now := o.nowF()
	msg := Message{Phone: phone, Code: code, SentAt: now, ExpiresAt: now.Add(o.ttl)}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.m[phone] = msg
	for _, ch := range o.listeners {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Latest returns the code for phone if present and not expired.
func (o *DevOutbox) Latest(phone string) (Message, bool) {
	o.mu.RLock()
	msg, ok := o.m[phone]
	o.mu.RUnlock()
	if !ok {
		return Message{}, false
	}
	if !msg.ExpiresAt.After(o.nowF()) {
		o.mu.Lock()
		if cur, ok := o.m[phone]; ok && cur == msg {
			delete(o.m, phone)
		}
		o.mu.Unlock()
		return Message{}, false
	}
	return msg, true
}

// Listen returns a channel receiving every message sent after the call. Slow
// listeners miss messages rather than blocking delivery. The returned func
// stops the subscription and closes the channel.
func (o *DevOutbox) Listen(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Message, buffer)

	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = ch
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.listeners, id)
			o.mu.Unlock()
			close(ch)
		})
	}
}
