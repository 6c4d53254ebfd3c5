package publisher

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/omni/tally-relay/entity"
	"github.com/omni/tally-relay/logging"
)

const writeTimeout = 10 * time.Second

var Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "relay",
	Subsystem: "publisher",
	Name:      "subscribers",
	Help:      "Number of open live state connections.",
})

// Message is pushed to every subscriber on each tick.
type Message struct {
	A uint64 `json:"A"`
	B uint64 `json:"B"`
}

type LatestAccountSource interface {
	LatestAccount() (solana.PublicKey, bool)
}

type AccountReader interface {
	GetElection(ctx context.Context, address solana.PublicKey) (*entity.MirroredAccount, error)
}

type subscriber struct {
	conn *websocket.Conn
	send chan *Message
}

// Publisher pushes the totals of the most recently bridged election to all
// websocket subscribers on its own timer. Missed pushes are dropped, not queued.
type Publisher struct {
	logger   logging.Logger
	interval time.Duration
	latest   LatestAccountSource
	reader   AccountReader
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

func NewPublisher(logger logging.Logger, interval time.Duration, latest LatestAccountSource, reader AccountReader) *Publisher {
	return &Publisher{
		logger:   logger,
		interval: interval,
		latest:   latest,
		reader:   reader,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Start pushes on every tick until ctx is cancelled, then disconnects all subscribers.
func (p *Publisher) Start(ctx context.Context) {
	p.logger.WithField("interval", p.interval.String()).Info("starting live state publisher")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.closeAll()
			p.logger.Info("live state publisher stopped")
			return
		case <-ticker.C:
			p.Publish(ctx)
		}
	}
}

// Publish reads the latest account once and fans it out.
func (p *Publisher) Publish(ctx context.Context) {
	if p.Count() == 0 {
		return
	}
	address, ok := p.latest.LatestAccount()
	if !ok {
		return
	}
	account, err := p.reader.GetElection(ctx, address)
	if err != nil {
		p.logger.WithError(err).WithField("election_account", address.String()).Warn("can't read latest election account, skipping tick")
		return
	}
	p.broadcast(&Message{A: account.VotesA, B: account.VotesB})
}

func (p *Publisher) broadcast(msg *Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sub := range p.subscribers {
		select {
		case sub.send <- msg:
		default:
		}
	}
}

func (p *Publisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

// ServeHTTP upgrades the request and holds it until the peer goes away.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.LoggerFromContext(r.Context())
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("can't upgrade live state connection")
		return
	}
	sub := &subscriber{
		conn: conn,
		send: make(chan *Message, 1),
	}
	if !p.add(sub) {
		conn.Close()
		return
	}
	logger.Info("live state subscriber connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.writeLoop(sub)
	}()
	for {
		if _, _, err = conn.NextReader(); err != nil {
			break
		}
	}
	p.remove(sub)
	<-done
	logger.Info("live state subscriber disconnected")
}

func (p *Publisher) writeLoop(sub *subscriber) {
	for msg := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := sub.conn.WriteJSON(msg); err != nil {
			sub.conn.Close()
			for range sub.send {
			}
			return
		}
	}
}

func (p *Publisher) add(sub *subscriber) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.subscribers[sub] = struct{}{}
	Subscribers.Inc()
	return true
}

func (p *Publisher) remove(sub *subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subscribers[sub]; !ok {
		return
	}
	delete(p.subscribers, sub)
	close(sub.send)
	sub.conn.Close()
	Subscribers.Dec()
}

func (p *Publisher) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for sub := range p.subscribers {
		_ = sub.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		sub.conn.Close()
	}
}
