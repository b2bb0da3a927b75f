// Package bus is a small in-process pub/sub broker with retained
// messages and a single-level wildcard. Topics are slash-free string
// paths ("pwm", "pwm0", "state"); subscribers receive on buffered
// channels and slow subscribers lose their oldest message rather than
// blocking a publisher.
package bus

import (
	"sync"
)

// Wildcard matches exactly one topic level in a subscription.
const Wildcard = "+"

// Topic is a sequence of path levels.
type Topic []string

// T builds a Topic from its levels.
func T(levels ...string) Topic { return Topic(levels) }

// Append returns a new Topic extended by the given levels. The
// receiver is never modified.
func (t Topic) Append(levels ...string) Topic {
	out := make(Topic, 0, len(t)+len(levels))
	out = append(out, t...)
	return append(out, levels...)
}

// Match reports whether a concrete topic matches a pattern that may
// contain Wildcard levels.
func (pattern Topic) Match(concrete Topic) bool {
	if len(pattern) != len(concrete) {
		return false
	}
	for i, lv := range pattern {
		if lv != Wildcard && lv != concrete[i] {
			return false
		}
	}
	return true
}

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// CanReply reports whether the sender asked for a response.
func (m *Message) CanReply() bool { return len(m.ReplyTo) > 0 }

// Subscription is one pattern registered by a connection.
type Subscription struct {
	pattern Topic
	ch      chan *Message
	conn    *Connection
}

func (s *Subscription) Pattern() Topic { return s.pattern }

func (s *Subscription) Channel() <-chan *Message { return s.ch }

func (s *Subscription) Unsubscribe() { s.conn.Unsubscribe(s) }

type node struct {
	children map[string]*node
	retained *Message
}

// Bus routes messages to matching subscriptions and stores retained
// messages in a topic trie so late subscribers see the latest value.
type Bus struct {
	mu   sync.RWMutex
	root *node
	subs []*Subscription
	qLen int
}

// New creates a bus; queueLen is the per-subscription channel depth.
func New(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

// Publish delivers msg to every matching subscription and, when
// Retained, stores it (nil payload clears the slot).
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if !sub.pattern.Match(msg.Topic) {
			continue
		}
		deliver(sub.ch, msg)
	}

	if !msg.Retained {
		return
	}
	n := b.root
	for _, lv := range msg.Topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[lv]
		if !ok {
			child = &node{}
			n.children[lv] = child
		}
		n = child
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

func deliver(ch chan *Message, msg *Message) {
	select {
	case ch <- msg:
	default:
		// Queue full: drop the oldest so the newest always lands.
		select {
		case <-ch:
		default:
		}
		ch <- msg
	}
}

func (b *Bus) subscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
	b.replayRetained(b.root, sub.pattern, sub.ch)
}

// replayRetained walks the retained trie along pattern (expanding
// wildcards) and replays stored messages to a fresh subscriber.
func (b *Bus) replayRetained(n *node, pattern Topic, ch chan *Message) {
	if len(pattern) == 0 {
		if n.retained != nil {
			deliver(ch, n.retained)
		}
		return
	}
	lv, rest := pattern[0], pattern[1:]
	if lv == Wildcard {
		for _, child := range n.children {
			b.replayRetained(child, rest, ch)
		}
		return
	}
	if child, ok := n.children[lv]; ok {
		b.replayRetained(child, rest, ch)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// Connection groups subscriptions under one owner so they can be torn
// down together.
type Connection struct {
	bus  *Bus
	mu   sync.Mutex
	subs []*Subscription
	id   string
}

func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

// NewMessage builds a message originating from this connection.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Reply answers a message on its ReplyTo topic. No-op when the sender
// did not ask for a response.
func (c *Connection) Reply(to *Message, payload any, retained bool) {
	if !to.CanReply() {
		return
	}
	c.Publish(&Message{Topic: to.ReplyTo, Payload: payload, Retained: retained})
}

// Subscribe registers a pattern owned by this connection. Retained
// messages under the pattern are replayed immediately.
func (c *Connection) Subscribe(pattern Topic) *Subscription {
	sub := &Subscription{
		pattern: pattern,
		ch:      make(chan *Message, c.bus.qLen),
		conn:    c,
	}
	c.bus.subscribe(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}
