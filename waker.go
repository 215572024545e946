package docvault

import (
	"net/http"
	"time"
)

// Waker is an abstract wake-up source for the queue processor. Each value
// received on Wake triggers a drain. Wakes are hints: correctness never
// depends on the processor running promptly, only on it eventually running.
type Waker interface {
	Wake() <-chan struct{}
	Stop()
}

// TickerWaker wakes the processor on a fixed interval. It is the safe
// fallback when no connectivity signal is available.
type TickerWaker struct {
	ch   chan struct{}
	done chan struct{}
}

func NewTickerWaker(interval time.Duration) *TickerWaker {
	w := &TickerWaker{
		ch:   make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.fire()
			case <-w.done:
				return
			}
		}
	}()
	return w
}

func (w *TickerWaker) Wake() <-chan struct{} { return w.ch }
func (w *TickerWaker) Stop()                 { close(w.done) }

func (w *TickerWaker) fire() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// ConnectivityWaker probes a reachability URL on an interval and wakes the
// processor on the offline-to-online transition, so queued work drains as
// soon as the network comes back instead of waiting for the next timer.
type ConnectivityWaker struct {
	ch     chan struct{}
	done   chan struct{}
	client *http.Client
	url    string
	online bool
}

func NewConnectivityWaker(probeURL string, interval time.Duration) *ConnectivityWaker {
	w := &ConnectivityWaker{
		ch:     make(chan struct{}, 1),
		done:   make(chan struct{}),
		client: &http.Client{Timeout: 3 * time.Second},
		url:    probeURL,
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.probe()
			case <-w.done:
				return
			}
		}
	}()
	return w
}

func (w *ConnectivityWaker) Wake() <-chan struct{} { return w.ch }
func (w *ConnectivityWaker) Stop()                 { close(w.done) }

func (w *ConnectivityWaker) probe() {
	req, err := http.NewRequest(http.MethodHead, w.url, nil)
	if err != nil {
		return
	}
	resp, err := w.client.Do(req)
	if err != nil {
		w.online = false
		return
	}
	resp.Body.Close()

	wasOffline := !w.online
	w.online = true
	if wasOffline {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}
