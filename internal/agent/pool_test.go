package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomiyasu0428/agri-ai-agent/pkg/logging"
)

// fakeResponder メッセージをそのまま返すスタブ
type fakeResponder struct {
	id      int
	cleared atomic.Bool
	err     error
}

func (f *fakeResponder) Respond(ctx context.Context, userID, message, snapshot string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("agent%d: %s", f.id, message), nil
}

func (f *fakeResponder) ClearHistory() { f.cleared.Store(true) }

// waitCleared 履歴の破棄は別 goroutine で行われるため完了を待つ
func waitCleared(t *testing.T, r *fakeResponder) {
	t.Helper()
	require.Eventually(t, r.cleared.Load, time.Second, 5*time.Millisecond)
}

func newTestPool(cfg PoolConfig) (*Pool, *[]*fakeResponder) {
	var created []*fakeResponder
	var mu sync.Mutex
	factory := func() Responder {
		mu.Lock()
		defer mu.Unlock()
		r := &fakeResponder{id: len(created)}
		created = append(created, r)
		return r
	}
	cfg.CleanupInterval = time.Hour // テスト中はバックグラウンド掃除を発火させない
	p := NewPool(cfg, factory, logging.Default("test"))
	return p, &created
}

func TestPool_ReusesAgentPerUser(t *testing.T) {
	p, created := newTestPool(PoolConfig{MaxAgents: 10, TTL: time.Hour})
	defer p.Shutdown()
	ctx := context.Background()

	out, err := p.Process(ctx, "user1", "こんにちは", "")
	require.NoError(t, err)
	assert.Equal(t, "agent0: こんにちは", out)

	out, err = p.Process(ctx, "user1", "タスクは？", "")
	require.NoError(t, err)
	assert.Equal(t, "agent0: タスクは？", out)

	_, err = p.Process(ctx, "user2", "こんにちは", "")
	require.NoError(t, err)

	assert.Len(t, *created, 2)
	assert.ElementsMatch(t, []string{"user1", "user2"}, p.ActiveUsers())
}

func TestPool_TTLExpiry(t *testing.T) {
	p, created := newTestPool(PoolConfig{MaxAgents: 10, TTL: 30 * time.Minute})
	defer p.Shutdown()
	ctx := context.Background()

	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	_, err := p.Process(ctx, "user1", "a", "")
	require.NoError(t, err)

	// TTL 内の再利用
	at = at.Add(10 * time.Minute)
	_, err = p.Process(ctx, "user1", "b", "")
	require.NoError(t, err)
	assert.Len(t, *created, 1)

	// TTL 超過で作り直し
	at = at.Add(31 * time.Minute)
	_, err = p.Process(ctx, "user1", "c", "")
	require.NoError(t, err)
	assert.Len(t, *created, 2)
	waitCleared(t, (*created)[0])
}

func TestPool_EvictsOldestWhenFull(t *testing.T) {
	p, created := newTestPool(PoolConfig{MaxAgents: 2, TTL: time.Hour})
	defer p.Shutdown()
	ctx := context.Background()

	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	_, err := p.Process(ctx, "user1", "a", "")
	require.NoError(t, err)
	at = at.Add(time.Minute)
	_, err = p.Process(ctx, "user2", "a", "")
	require.NoError(t, err)
	at = at.Add(time.Minute)

	// 満杯なので最終利用が最も古い user1 が追い出される
	_, err = p.Process(ctx, "user3", "a", "")
	require.NoError(t, err)

	assert.Len(t, *created, 3)
	assert.ElementsMatch(t, []string{"user2", "user3"}, p.ActiveUsers())
	waitCleared(t, (*created)[0])
}

// inFlightResponder Respond を外部から待たせ、処理中の履歴破棄を検出する
type inFlightResponder struct {
	started  chan struct{}
	release  chan struct{}
	inFlight atomic.Bool
	cleared  atomic.Bool
	overlap  atomic.Bool
}

func (r *inFlightResponder) Respond(ctx context.Context, userID, message, snapshot string) (string, error) {
	r.inFlight.Store(true)
	defer r.inFlight.Store(false)
	close(r.started)
	<-r.release
	return "done", nil
}

func (r *inFlightResponder) ClearHistory() {
	if r.inFlight.Load() {
		r.overlap.Store(true)
	}
	r.cleared.Store(true)
}

func TestPool_EvictionWaitsForInFlightRespond(t *testing.T) {
	victim := &inFlightResponder{started: make(chan struct{}), release: make(chan struct{})}
	first := true
	factory := func() Responder {
		// 最初のセッションだけ応答を待たせる
		if first {
			first = false
			return victim
		}
		return &fakeResponder{}
	}
	p := NewPool(PoolConfig{MaxAgents: 2, TTL: time.Hour, CleanupInterval: time.Hour}, factory, logging.Default("test"))
	defer p.Shutdown()
	ctx := context.Background()

	// 呼び出しごとに 1 秒進む時計で lastUsed の順序を固定する
	var tick atomic.Int64
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Second) }

	result := make(chan string, 1)
	go func() {
		out, err := p.Process(ctx, "user1", "a", "")
		assert.NoError(t, err)
		result <- out
	}()
	<-victim.started

	// user1 の応答待ちの間に満杯まで埋め、最古の user1 を追い出す
	_, err := p.Process(ctx, "user2", "a", "")
	require.NoError(t, err)
	_, err = p.Process(ctx, "user3", "a", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user2", "user3"}, p.ActiveUsers())

	// 破棄は処理中の応答の完了を待つので、まだ履歴は消えていない
	assert.False(t, victim.cleared.Load())

	close(victim.release)
	assert.Equal(t, "done", <-result)
	require.Eventually(t, victim.cleared.Load, time.Second, 5*time.Millisecond)
	assert.False(t, victim.overlap.Load(), "履歴の破棄が応答処理と重なった")
}

func TestPool_CleanupExpired(t *testing.T) {
	p, _ := newTestPool(PoolConfig{MaxAgents: 10, TTL: 30 * time.Minute})
	defer p.Shutdown()
	ctx := context.Background()

	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	_, err := p.Process(ctx, "user1", "a", "")
	require.NoError(t, err)
	at = at.Add(20 * time.Minute)
	_, err = p.Process(ctx, "user2", "a", "")
	require.NoError(t, err)

	// user1 だけが TTL を超えている
	at = at.Add(15 * time.Minute)
	removed := p.cleanupExpired()
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"user2"}, p.ActiveUsers())
}

func TestPool_Reset(t *testing.T) {
	p, created := newTestPool(PoolConfig{MaxAgents: 10, TTL: time.Hour})
	defer p.Shutdown()
	ctx := context.Background()

	_, err := p.Process(ctx, "user1", "a", "")
	require.NoError(t, err)

	p.Reset("user1")
	assert.Empty(t, p.ActiveUsers())
	waitCleared(t, (*created)[0])

	// リセット後は新しいセッション
	_, err = p.Process(ctx, "user1", "b", "")
	require.NoError(t, err)
	assert.Len(t, *created, 2)
}

func TestPool_Stats(t *testing.T) {
	p, created := newTestPool(PoolConfig{MaxAgents: 4, TTL: time.Hour})
	defer p.Shutdown()
	ctx := context.Background()

	_, err := p.Process(ctx, "user1", "a", "")
	require.NoError(t, err)
	_, err = p.Process(ctx, "user1", "b", "")
	require.NoError(t, err)
	_, err = p.Process(ctx, "user2", "a", "")
	require.NoError(t, err)

	(*created)[1].err = fmt.Errorf("model unavailable")
	_, err = p.Process(ctx, "user2", "b", "")
	require.Error(t, err)

	stats := p.Stats()
	assert.Equal(t, 2, stats.ActiveAgents)
	assert.Equal(t, int64(2), stats.TotalCreated)
	assert.Equal(t, int64(4), stats.TotalMessages)
	assert.Equal(t, int64(1), stats.TotalErrors)
	assert.InDelta(t, 0.5, stats.PoolUtilization, 1e-9)
}

func TestPool_ConcurrentUsers(t *testing.T) {
	p, _ := newTestPool(PoolConfig{MaxAgents: 100, TTL: time.Hour})
	defer p.Shutdown()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user%d", n)
			for j := 0; j < 10; j++ {
				if _, err := p.Process(ctx, userID, "msg", ""); err != nil {
					t.Errorf("Process failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	stats := p.Stats()
	assert.Equal(t, 10, stats.ActiveAgents)
	assert.Equal(t, int64(100), stats.TotalMessages)
}
