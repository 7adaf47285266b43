package api

import (
	"io"
	"net/http"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	log "github.com/sirupsen/logrus"
)

// subscriberBuffer is how many events a slow subscriber may fall behind
// before events are dropped for it.
const subscriberBuffer = 16

// events fans out server-sent events to the subscribers of a fixed set of
// channels. Subscriber queues are never closed, Close signals done instead
// so a publish can never race a disconnect.
type events struct {
	mx     sync.Mutex
	subs   map[string]map[chan *sse.Message]struct{}
	closed bool
	done   chan struct{}

	log log.FieldLogger
}

func newEvents(l log.FieldLogger, channels ...string) *events {
	e := &events{
		subs: make(map[string]map[chan *sse.Message]struct{}, len(channels)),
		done: make(chan struct{}),
		log:  l,
	}
	for _, name := range channels {
		e.subs[name] = make(map[chan *sse.Message]struct{})
	}
	return e
}

// Publish sends data to every subscriber of channel without blocking.
func (e *events) Publish(channel string, data []byte) {
	msg := sse.SimpleMessage(string(data))

	e.mx.Lock()
	defer e.mx.Unlock()
	for ch := range e.subs[channel] {
		select {
		case ch <- msg:
		default:
			e.log.WithField("channel", channel).Debug("subscriber behind, event dropped")
		}
	}
}

func (e *events) subscribe(channel string) (chan *sse.Message, bool) {
	e.mx.Lock()
	defer e.mx.Unlock()
	subs, ok := e.subs[channel]
	if !ok || e.closed {
		return nil, false
	}
	ch := make(chan *sse.Message, subscriberBuffer)
	subs[ch] = struct{}{}
	return ch, true
}

func (e *events) unsubscribe(channel string, ch chan *sse.Message) {
	e.mx.Lock()
	delete(e.subs[channel], ch)
	e.mx.Unlock()
}

// Subscribers returns the number of connected subscribers of channel.
func (e *events) Subscribers(channel string) int {
	e.mx.Lock()
	defer e.mx.Unlock()
	return len(e.subs[channel])
}

// Close ends every open stream and refuses new subscribers.
func (e *events) Close() {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.done)
}

// Handler streams channel to the client until it disconnects or the
// events are closed.
func (e *events) Handler(channel string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		ch, ok := e.subscribe(channel)
		if !ok {
			http.Error(w, "event stream closed", http.StatusServiceUnavailable)
			return
		}
		defer e.unsubscribe(channel, ch)

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case <-req.Context().Done():
				return
			case <-e.done:
				return
			case msg := <-ch:
				_, err := io.WriteString(w, msg.String())
				if err != nil {
					e.log.WithError(err).Debug("write event")
					return
				}
				flusher.Flush()
			}
		}
	})
}
