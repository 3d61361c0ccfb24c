// Package sse implements a Server-Sent Events broker that keeps canvas
// panels in step with link and item changes.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	clientBuffer = 64
	// replayLimit must not exceed clientBuffer so a full replay never drops.
	replayLimit = clientBuffer
	heartbeat   = 15 * time.Second
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Change topics.
const (
	TopicLink = "link"
	TopicItem = "item"
)

type changeReq struct {
	topic string
	kind  string
	data  any
}

type subscribeReq struct {
	ch     chan []byte
	lastID uint64
}

type frame struct {
	id  uint64
	raw []byte
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the clients, the event sequence, the
// replay window and the health throttle timestamp. Public methods talk to it
// through channels.
//
// Every frame carries an SSE id. A client reconnecting with Last-Event-ID
// gets the frames it missed, as long as they are still in the replay window.
//
// Every link or item change is followed by a health.updated hint, at most
// once per throttle interval, telling panels to re-run their health checks.
// Changes suppressed by the throttle are covered by one trailing hint at the
// end of the interval, naming the latest cause.
type Broker struct {
	healthMin time.Duration
	heartbeat time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan changeReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given health throttle interval.
func NewBroker(healthThrottle time.Duration) *Broker {
	if healthThrottle <= 0 {
		healthThrottle = 2 * time.Second
	}

	b := &Broker{
		healthMin:     healthThrottle,
		heartbeat:     heartbeat,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan changeReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastHealth time.Time
		seq        uint64
		history    []frame

		// Armed while a suppressed change still owes a health hint.
		trailing     *time.Timer
		trailingC    <-chan time.Time
		pendingCause string
	)
	defer func() {
		if trailing != nil {
			trailing.Stop()
		}
	}()

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		history = append(history, frame{id: seq, raw: raw})
		if len(history) > replayLimit {
			history = history[len(history)-replayLimit:]
		}

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = struct{}{}
			if req.lastID == 0 {
				continue
			}
			for _, f := range history {
				if f.id > req.lastID {
					req.ch <- f.raw
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.changeCh:
			cause := req.topic + "." + req.kind
			broadcast(Event{Type: cause, Data: req.data})

			now := time.Now()
			if now.Sub(lastHealth) >= b.healthMin && trailingC == nil {
				lastHealth = now
				broadcast(Event{Type: "health.updated", Data: map[string]string{"cause": cause}})
				continue
			}
			pendingCause = cause
			if trailingC == nil {
				trailing = time.NewTimer(b.healthMin - now.Sub(lastHealth))
				trailingC = trailing.C
			}

		case <-trailingC:
			trailingC = nil
			lastHealth = time.Now()
			broadcast(Event{Type: "health.updated", Data: map[string]string{"cause": pendingCause}})

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeFrom(0)
}

// SubscribeFrom adds a new client and queues the retained frames with an id
// greater than lastID. A zero lastID replays nothing.
func (b *Broker) SubscribeFrom(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, lastID: lastID}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishLinkEvent publishes link.<kind> carrying the link, followed by a
// throttled health.updated.
func (b *Broker) PublishLinkEvent(kind string, link any) {
	b.publishChange(changeReq{topic: TopicLink, kind: kind, data: link})
}

// PublishItemEvent publishes item.<kind> for a watcher-driven model change,
// followed by a throttled health.updated.
func (b *Broker) PublishItemEvent(kind, itemID string) {
	b.publishChange(changeReq{topic: TopicItem, kind: kind, data: map[string]string{"id": itemID}})
}

func (b *Broker) publishChange(req changeReq) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- req:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Malformed ids replay nothing.
	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := b.SubscribeFrom(lastID)
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
