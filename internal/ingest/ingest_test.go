package ingest

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padcast/internal/plugin"
	logx "padcast/pkg/logx"
)

type sink struct {
	mu     sync.Mutex
	events []plugin.PadEvent
	refuse bool
}

func (s *sink) PadDataSent(ev plugin.PadEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *sink) Events() []plugin.PadEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]plugin.PadEvent(nil), s.events...)
}

const sample = `{"service":{"name":"Production"},"log":{"name":"Main Log","machine":0,"onair":true},"now":{"cart_number":100001,"length":125000,"title":"Song","artist":"Band","group":"MUSIC"},"next":{"cart_number":100002,"title":"Next"}}`

func TestDecode(t *testing.T) {
	t.Parallel()
	ev, err := Decode([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "Production", ev.Service.Name)
	assert.Equal(t, 0, ev.Log.Machine)
	assert.True(t, ev.Log.OnAir)
	require.NotNil(t, ev.Now)
	assert.EqualValues(t, 100001, ev.Now.CartNumber)
	assert.Equal(t, 125000, ev.Now.Length)
	assert.Equal(t, "MUSIC", ev.Now.Group)
	assert.Equal(t, "Next", ev.Next.Title)

	_, err = Decode([]byte(`{"log":{"machine":1}}`))
	assert.ErrorIs(t, err, ErrEmptyEvent)
	_, err = Decode([]byte(`{"now":`))
	assert.Error(t, err)
}

func TestReadStreamSkipsBadLines(t *testing.T) {
	t.Parallel()
	s := &sink{}
	r := New(logx.Nop(), s)
	input := strings.Join([]string{
		sample,
		"",
		"# comment",
		"not json",
		`{"log":{"machine":101},"now":{"cart_number":5}}`,
	}, "\n")
	require.NoError(t, r.ReadStream(context.Background(), "test", strings.NewReader(input)))

	evs := s.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, 101, evs[1].Log.Machine)
	assert.Equal(t, Stats{Accepted: 2, Rejected: 1}, r.Stats())
}

func TestRunFromFileCountsDrops(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sample+"\n"+sample+"\n"), 0o600))

	s := &sink{refuse: true}
	r := New(logx.Nop(), s)
	require.NoError(t, r.Run(context.Background(), path))
	assert.EqualValues(t, 2, r.Stats().Dropped)

	assert.Error(t, r.Run(context.Background(), filepath.Join(t.TempDir(), "missing")))
}

func TestServePacket(t *testing.T) {
	t.Parallel()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	s := &sink{}
	r := New(logx.Nop(), s)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.ServePacket(ctx, pc) }()

	conn, err := net.Dial("udp4", pc.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(sample))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(s.Events()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ServePacket did not return after cancel")
	}
}
