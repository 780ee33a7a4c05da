package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/tomiyasu0428/agri-ai-agent/internal/storage"
	"github.com/tomiyasu0428/agri-ai-agent/pkg/logging"
)

// ============================================================================
// エージェントプール
// ============================================================================

// Responder 対話セッションの振る舞い。Pool のテストで差し替える
type Responder interface {
	Respond(ctx context.Context, userID, message, contextSnapshot string) (string, error)
	ClearHistory()
}

// Factory ユーザー用セッションを作る
type Factory func() Responder

// PoolConfig プール設定
type PoolConfig struct {
	// MaxAgents 同時に保持するセッション数の上限
	MaxAgents int

	// TTL 最終利用からこの時間を過ぎたセッションは破棄する
	TTL time.Duration

	// CleanupInterval バックグラウンド掃除の間隔
	CleanupInterval time.Duration
}

// DefaultPoolConfig 既定のプール設定
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxAgents:       100,
		TTL:             30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

type poolEntry struct {
	agent Responder

	// mu ユーザー内の処理を直列化する（ユーザー間は並行）
	mu sync.Mutex

	createdAt       time.Time
	lastUsed        time.Time
	messageCount    int64
	errorCount      int64
	totalProcessing time.Duration
}

// Pool ユーザーごとの対話セッションとそのライフサイクルを管理する
type Pool struct {
	cfg     PoolConfig
	factory Factory
	logger  *logging.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*poolEntry

	totalCreated int64
	totalRemoved int64

	stop chan struct{}
	done chan struct{}
}

// NewPool プールを作り、バックグラウンド掃除を開始する
func NewPool(cfg PoolConfig, factory Factory, logger *logging.Logger) *Pool {
	if cfg.MaxAgents <= 0 {
		cfg.MaxAgents = DefaultPoolConfig().MaxAgents
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultPoolConfig().TTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultPoolConfig().CleanupInterval
	}

	p := &Pool{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*poolEntry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.cleanupLoop()

	logger.Info("agent pool initialized",
		"max_agents", cfg.MaxAgents, "ttl", cfg.TTL.String())
	return p
}

// NewGeminiPool Gemini クライアントを共有するプールを作る
func NewGeminiPool(ctx context.Context, apiKey, modelName string, store storage.AgriStore, cfg PoolConfig, logger *logging.Logger) (*Pool, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	factory := func() Responder {
		return newAgent(client, modelName, store, time.Now, logger)
	}
	return NewPool(cfg, factory, logger), nil
}

// Process ユーザーのメッセージを処理する。同一ユーザーの処理は直列化される
func (p *Pool) Process(ctx context.Context, userID, message, contextSnapshot string) (string, error) {
	entry := p.acquire(userID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	start := p.now()
	text, err := entry.agent.Respond(ctx, userID, message, contextSnapshot)
	p.recordUsage(entry, p.now().Sub(start), err != nil)

	if err != nil {
		return "", fmt.Errorf("process message for %s: %w", userID, err)
	}
	return text, nil
}

// Reset ユーザーのセッションを破棄する（リセットコマンド用）
func (p *Pool) Reset(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(userID)
}

// acquire ユーザー用セッションを取得または作成する
func (p *Pool) acquire(userID string) *poolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if entry, ok := p.entries[userID]; ok {
		if now.Sub(entry.lastUsed) < p.cfg.TTL {
			entry.lastUsed = now
			return entry
		}
		p.logger.Info("agent ttl expired", "user_id", userID)
		p.removeLocked(userID)
	}

	if len(p.entries) >= p.cfg.MaxAgents {
		p.removeOldestLocked()
	}

	entry := &poolEntry{
		agent:     p.factory(),
		createdAt: now,
		lastUsed:  now,
	}
	p.entries[userID] = entry
	p.totalCreated++
	p.logger.Info("agent created", "user_id", userID, "active", len(p.entries))
	return entry
}

func (p *Pool) recordUsage(entry *poolEntry, elapsed time.Duration, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry.lastUsed = p.now()
	entry.messageCount++
	entry.totalProcessing += elapsed
	if failed {
		entry.errorCount++
	}
}

func (p *Pool) removeLocked(userID string) {
	entry, ok := p.entries[userID]
	if !ok {
		return
	}
	delete(p.entries, userID)
	p.totalRemoved++

	// 処理中の Respond が終わってから履歴を破棄する。p.mu を持ったまま
	// entry.mu を待つと recordUsage とデッドロックするため別 goroutine で行う
	go func() {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		entry.agent.ClearHistory()
	}()
}

// removeOldestLocked 最終利用が最も古いセッションを捨てて空きを作る
func (p *Pool) removeOldestLocked() {
	var oldestUser string
	var oldest time.Time
	for userID, entry := range p.entries {
		if oldestUser == "" || entry.lastUsed.Before(oldest) {
			oldestUser = userID
			oldest = entry.lastUsed
		}
	}
	if oldestUser != "" {
		p.logger.Info("evicting oldest agent", "user_id", oldestUser)
		p.removeLocked(oldestUser)
	}
}

func (p *Pool) cleanupLoop() {
	defer close(p.done)
	ticker := time.NewTicker(p.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.cleanupExpired()
		case <-p.stop:
			return
		}
	}
}

// cleanupExpired TTL を過ぎたセッションを破棄し、破棄数を返す
func (p *Pool) cleanupExpired() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var expired []string
	for userID, entry := range p.entries {
		if now.Sub(entry.lastUsed) >= p.cfg.TTL {
			expired = append(expired, userID)
		}
	}
	for _, userID := range expired {
		p.removeLocked(userID)
	}
	if len(expired) > 0 {
		p.logger.Info("cleaned up expired agents", "count", len(expired))
	}
	return len(expired)
}

// Shutdown 掃除ループを止めて全セッションを破棄する
func (p *Pool) Shutdown() {
	close(p.stop)
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	for userID := range p.entries {
		p.removeLocked(userID)
	}
	p.logger.Info("agent pool shut down")
}

// ============================================================================
// 統計
// ============================================================================

// PoolStats プール統計
type PoolStats struct {
	ActiveAgents    int     `json:"active_agents"`
	MaxAgents       int     `json:"max_agents"`
	TotalCreated    int64   `json:"total_agents_created"`
	TotalRemoved    int64   `json:"total_agents_removed"`
	TotalMessages   int64   `json:"total_messages_processed"`
	TotalErrors     int64   `json:"total_errors"`
	AvgProcessingMs float64 `json:"average_processing_ms"`
	PoolUtilization float64 `json:"pool_utilization"`
}

// Stats プール全体の統計を返す
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{
		ActiveAgents: len(p.entries),
		MaxAgents:    p.cfg.MaxAgents,
		TotalCreated: p.totalCreated,
		TotalRemoved: p.totalRemoved,
	}

	var totalProcessing time.Duration
	for _, entry := range p.entries {
		stats.TotalMessages += entry.messageCount
		stats.TotalErrors += entry.errorCount
		totalProcessing += entry.totalProcessing
	}
	if stats.TotalMessages > 0 {
		stats.AvgProcessingMs = float64(totalProcessing.Milliseconds()) / float64(stats.TotalMessages)
	}
	if stats.MaxAgents > 0 {
		stats.PoolUtilization = float64(stats.ActiveAgents) / float64(stats.MaxAgents)
	}
	return stats
}

// ActiveUsers アクティブなユーザーIDの一覧
func (p *Pool) ActiveUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := make([]string, 0, len(p.entries))
	for userID := range p.entries {
		users = append(users, userID)
	}
	return users
}
