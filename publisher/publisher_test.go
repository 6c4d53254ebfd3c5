package publisher_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omni/tally-relay/entity"
	"github.com/omni/tally-relay/publisher"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeLatest struct {
	mu      sync.Mutex
	address *solana.PublicKey
}

func (f *fakeLatest) set(address solana.PublicKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.address = &address
}

func (f *fakeLatest) LatestAccount() (solana.PublicKey, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.address == nil {
		return solana.PublicKey{}, false
	}
	return *f.address, true
}

type fakeReader struct {
	mu      sync.Mutex
	account *entity.MirroredAccount
	err     error
}

func (f *fakeReader) set(account *entity.MirroredAccount, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.account = account
	f.err = err
}

func (f *fakeReader) GetElection(_ context.Context, _ solana.PublicKey) (*entity.MirroredAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, f.err
}

func newTestPublisher(t *testing.T, interval time.Duration) (*publisher.Publisher, *fakeLatest, *fakeReader, *httptest.Server) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	latest := new(fakeLatest)
	reader := new(fakeReader)
	p := publisher.NewPublisher(logger, interval, latest, reader)
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return p, latest, reader, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *publisher.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	msg := new(publisher.Message)
	require.NoError(t, conn.ReadJSON(msg))
	return msg
}

func TestPublisher_Publish(t *testing.T) {
	t.Parallel()

	p, latest, reader, srv := newTestPublisher(t, time.Hour)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return p.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	latest.set(solana.NewWallet().PublicKey())
	reader.set(&entity.MirroredAccount{VotesA: 42, VotesB: 7}, nil)
	p.Publish(context.Background())
	require.Equal(t, &publisher.Message{A: 42, B: 7}, readMessage(t, conn))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return p.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestPublisher_SkipsWithoutLatestAccount(t *testing.T) {
	t.Parallel()

	p, latest, reader, srv := newTestPublisher(t, time.Hour)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return p.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	reader.set(&entity.MirroredAccount{VotesA: 1, VotesB: 1}, nil)
	p.Publish(context.Background())

	latest.set(solana.NewWallet().PublicKey())
	reader.set(&entity.MirroredAccount{VotesA: 2, VotesB: 3}, nil)
	p.Publish(context.Background())
	require.Equal(t, &publisher.Message{A: 2, B: 3}, readMessage(t, conn))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return p.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestPublisher_ReadFailureSkipsTick(t *testing.T) {
	t.Parallel()

	p, latest, reader, srv := newTestPublisher(t, time.Hour)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return p.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	latest.set(solana.NewWallet().PublicKey())
	reader.set(nil, errors.New("rpc hiccup"))
	p.Publish(context.Background())

	reader.set(&entity.MirroredAccount{VotesA: 5, VotesB: 6}, nil)
	p.Publish(context.Background())
	require.Equal(t, &publisher.Message{A: 5, B: 6}, readMessage(t, conn))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return p.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestPublisher_FanOut(t *testing.T) {
	t.Parallel()

	p, latest, reader, srv := newTestPublisher(t, time.Hour)
	conn1 := dial(t, srv)
	conn2 := dial(t, srv)
	require.Eventually(t, func() bool { return p.Count() == 2 }, 5*time.Second, 10*time.Millisecond)

	latest.set(solana.NewWallet().PublicKey())
	reader.set(&entity.MirroredAccount{VotesA: 10, VotesB: 20}, nil)
	p.Publish(context.Background())
	require.Equal(t, &publisher.Message{A: 10, B: 20}, readMessage(t, conn1))
	require.Equal(t, &publisher.Message{A: 10, B: 20}, readMessage(t, conn2))

	require.NoError(t, conn1.Close())
	require.Eventually(t, func() bool { return p.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, conn2.Close())
	require.Eventually(t, func() bool { return p.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestPublisher_StartTicksAndShutsDown(t *testing.T) {
	t.Parallel()

	p, latest, reader, srv := newTestPublisher(t, 20*time.Millisecond)
	latest.set(solana.NewWallet().PublicKey())
	reader.set(&entity.MirroredAccount{VotesA: 42, VotesB: 7}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Start(ctx)
	}()

	conn := dial(t, srv)
	defer conn.Close()
	require.Equal(t, &publisher.Message{A: 42, B: 7}, readMessage(t, conn))

	cancel()
	<-done
	require.Eventually(t, func() bool { return p.Count() == 0 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
