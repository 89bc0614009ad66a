package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func recv(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message")
	}
	return Message{}
}

func TestHub_BroadcastOrderAndUnsubscribe(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t), 4)
	s := h.Subscribe()
	require.Equal(t, 1, h.Len())

	require.NoError(t, h.Publish(context.Background(), EventUserUpdate, 1))
	require.NoError(t, h.Publish(context.Background(), EventRankingUpdate, 2))
	require.Equal(t, EventUserUpdate, recv(t, s.Outbound).Event)
	require.Equal(t, EventRankingUpdate, recv(t, s.Outbound).Event)

	h.Unsubscribe(s)
	h.Unsubscribe(s)
	require.Equal(t, 0, h.Len())
	_, ok := <-s.Outbound
	require.False(t, ok)

	h.Broadcast(Message{Event: "ignored"})
}

func TestHub_DropsWhenBufferFull(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t), 1)
	s := h.Subscribe()
	defer h.Unsubscribe(s)

	h.Broadcast(Message{Event: "a"})
	h.Broadcast(Message{Event: "b"})
	require.Equal(t, "a", recv(t, s.Outbound).Event)
	select {
	case m := <-s.Outbound:
		t.Fatalf("unexpected message %q", m.Event)
	default:
	}
}

func TestHub_ServeHTTPStreamsEvents(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t), 4)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.Publish(context.Background(), EventUserUpdate, map[string]int{"points": 5}))

	rd := bufio.NewReader(resp.Body)
	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: userUpdate\n", line)
	line, err = rd.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, `data: {"points":5}`, strings.TrimSpace(line))
}

func TestHub_CloseEndsStreams(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t), 4)
	a, b := h.Subscribe(), h.Subscribe()
	h.Close()
	require.Equal(t, 0, h.Len())
	_, ok := <-a.Outbound
	require.False(t, ok)
	_, ok = <-b.Outbound
	require.False(t, ok)
	h.Unsubscribe(a)
}

type recorder struct {
	events []string
	err    error
}

func (r *recorder) Publish(_ context.Context, event string, _ any) error {
	r.events = append(r.events, event)
	return r.err
}

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	a := &recorder{}
	b := &recorder{err: errors.New("b down")}
	m := Multi{a, nil, b}

	err := m.Publish(context.Background(), EventNewChallenges, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "b down")
	require.Equal(t, []string{EventNewChallenges}, a.events)
	require.Equal(t, []string{EventNewChallenges}, b.events)

	require.NoError(t, Multi{a}.Publish(context.Background(), "x", nil))
	require.NoError(t, Nop{}.Publish(context.Background(), "x", nil))
}

type fakePublisher struct {
	channel string
	raw     []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message any) *goredis.IntCmd {
	f.channel = channel
	f.raw, _ = message.([]byte)
	return goredis.NewIntResult(1, f.err)
}

func TestRedis_PublishEncodesEnvelope(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	fp := &fakePublisher{}
	r := &Redis{log: zaptest.NewLogger(t), pub: fp, channel: "ch", now: func() time.Time { return at }}

	require.NoError(t, r.Publish(context.Background(), EventRankingUpdate, []int{1, 2}))
	require.Equal(t, "ch", fp.channel)

	var got map[string]any
	require.NoError(t, json.Unmarshal(fp.raw, &got))
	require.Equal(t, EventRankingUpdate, got["event"])

	msg, err := decode(fp.raw)
	require.NoError(t, err)
	require.Equal(t, EventRankingUpdate, msg.Event)
	require.Equal(t, at, msg.At)
	require.JSONEq(t, `[1,2]`, string(msg.Payload.(json.RawMessage)))

	fp.err = errors.New("conn refused")
	require.Error(t, r.Publish(context.Background(), EventUserUpdate, nil))
}

func TestDecode_Rejects(t *testing.T) {
	_, err := decode([]byte(`not json`))
	require.Error(t, err)
	_, err = decode([]byte(`{"payload":1}`))
	require.Error(t, err)
}

func TestNewRedis_RequiresAddr(t *testing.T) {
	_, err := NewRedis(context.Background(), zaptest.NewLogger(t), "", "")
	require.Error(t, err)
}

// loopback is an in-process pub/sub channel standing in for a Redis server.
type loopback struct {
	mu      sync.Mutex
	msgs    chan *goredis.Message
	recvErr error
	closed  bool
}

func newLoopback() *loopback { return &loopback{msgs: make(chan *goredis.Message, 8)} }

func (l *loopback) Publish(_ context.Context, channel string, message any) *goredis.IntCmd {
	raw, _ := message.([]byte)
	l.msgs <- &goredis.Message{Channel: channel, Payload: string(raw)}
	return goredis.NewIntResult(1, nil)
}

func (l *loopback) subscribe(context.Context, string) subscription { return l }

func (l *loopback) Receive(context.Context) (any, error) {
	if l.recvErr != nil {
		return nil, l.recvErr
	}
	return &goredis.Subscription{Kind: "subscribe", Count: 1}, nil
}

func (l *loopback) Channel(...goredis.ChannelOption) <-chan *goredis.Message { return l.msgs }

func (l *loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

func (l *loopback) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func TestRedis_ForwardDeliversToHubStream(t *testing.T) {
	lb := newLoopback()
	r := &Redis{log: zaptest.NewLogger(t), pub: lb, sub: lb.subscribe, channel: "ch", now: time.Now}
	h := NewHub(zaptest.NewLogger(t), 4)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Forward(ctx, h.Broadcast))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	lb.msgs <- &goredis.Message{Channel: "ch", Payload: "garbage"}
	require.NoError(t, r.Publish(context.Background(), EventUserUpdate, map[string]int{"points": 7}))

	rd := bufio.NewReader(resp.Body)
	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: userUpdate\n", line)
	line, err = rd.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, `data: {"points":7}`, strings.TrimSpace(line))
}

func TestRedis_ForwardStopsOnCancel(t *testing.T) {
	lb := newLoopback()
	r := &Redis{log: zaptest.NewLogger(t), pub: lb, sub: lb.subscribe, channel: "ch", now: time.Now}

	got := make(chan Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Forward(ctx, func(m Message) { got <- m }))

	require.NoError(t, r.Publish(context.Background(), EventNewChallenges, nil))
	require.Equal(t, EventNewChallenges, recv(t, got).Event)

	cancel()
	require.Eventually(t, lb.isClosed, time.Second, 5*time.Millisecond)
}

func TestRedis_ForwardErrors(t *testing.T) {
	lb := newLoopback()
	r := &Redis{log: zaptest.NewLogger(t), pub: lb, sub: lb.subscribe, channel: "ch", now: time.Now}
	require.Error(t, r.Forward(context.Background(), nil))

	lb.recvErr = errors.New("no auth")
	err := r.Forward(context.Background(), func(Message) {})
	require.ErrorContains(t, err, "no auth")
	require.True(t, lb.isClosed())
}
