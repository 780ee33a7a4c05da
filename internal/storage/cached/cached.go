// Package cached AgriStore の Redis リードスルーキャッシュ
//
// 参照系の結果を JSON で Redis に置き、TTL と書き込み時の明示無効化で
// 鮮度を保つ。Redis 障害はキャッシュ素通りとして扱い、参照自体は
// 失敗させない。
package cached

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
	"github.com/tomiyasu0428/agri-ai-agent/internal/storage"
)

// Key 接頭辞と TTL
const (
	keyTasks     = "agri:tasks:"
	keyField     = "agri:field:"
	keyPesticide = "agri:pesticide:"
	keyUsage     = "agri:usage:"

	// DefaultTTL 参照キャッシュの既定 TTL
	DefaultTTL = 5 * time.Minute
)

// Stats キャッシュの命中統計
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Store AgriStore をラップするキャッシュデコレータ
type Store struct {
	inner  storage.AgriStore
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

var _ storage.AgriStore = (*Store)(nil)

// NewStore キャッシュデコレータを作る。ttl<=0 は既定値
func NewStore(inner storage.AgriStore, client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{inner: inner, client: client, ttl: ttl}
}

// GetStats 命中統計を返す
func (s *Store) GetStats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}

// ============================================================================
// 参照系（リードスルー）
// ============================================================================

// lookup キャッシュを引き、ミス時は load を実行して結果を書き戻す。
// cacheable が非 nil の場合、false を返した結果は書き戻さない
func lookup[T any](ctx context.Context, s *Store, key string, load func() (T, error), cacheable func(T) bool) (T, error) {
	data, err := s.client.Get(ctx, key).Result()
	if err == nil {
		var cached T
		if err := json.Unmarshal([]byte(data), &cached); err == nil {
			s.hits.Add(1)
			return cached, nil
		}
		// 壊れたエントリは捨てて取り直す
		s.client.Del(ctx, key)
	} else if err != redis.Nil {
		log.Printf("WARNING: cached: redis get %s: %v", key, err)
	}

	s.misses.Add(1)
	result, err := load()
	if err != nil {
		return result, err
	}

	if cacheable != nil && !cacheable(result) {
		return result, nil
	}
	if data, err := json.Marshal(result); err == nil {
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			log.Printf("WARNING: cached: redis set %s: %v", key, err)
		}
	}
	return result, nil
}

// GetTodayTasks キャッシュ越しにタスクを取得する
func (s *Store) GetTodayTasks(ctx context.Context, workerID, date string) ([]*model.TaskPlan, error) {
	key := keyTasks + workerID + ":" + date
	return lookup(ctx, s, key, func() ([]*model.TaskPlan, error) {
		return s.inner.GetTodayTasks(ctx, workerID, date)
	}, nil)
}

// GetFieldStatus キャッシュ越しに圃場情報を取得する（未ヒットはキャッシュしない）
func (s *Store) GetFieldStatus(ctx context.Context, fieldName string) (*model.Field, error) {
	key := keyField + fieldName
	return lookup(ctx, s, key, func() (*model.Field, error) {
		return s.inner.GetFieldStatus(ctx, fieldName)
	}, func(f *model.Field) bool { return f != nil })
}

// GetPesticideRecommendations キャッシュ越しに資材推奨を取得する
func (s *Store) GetPesticideRecommendations(ctx context.Context, fieldName, crop string) ([]*model.Material, error) {
	key := keyPesticide + fieldName + ":" + crop
	return lookup(ctx, s, key, func() ([]*model.Material, error) {
		return s.inner.GetPesticideRecommendations(ctx, fieldName, crop)
	}, nil)
}

// GetRecentMaterialUsage キャッシュ越しに資材使用履歴を取得する
func (s *Store) GetRecentMaterialUsage(ctx context.Context, fieldName string, days int) ([]*model.MaterialUsageRecord, error) {
	key := fmt.Sprintf("%s%s:%d", keyUsage, fieldName, days)
	return lookup(ctx, s, key, func() ([]*model.MaterialUsageRecord, error) {
		return s.inner.GetRecentMaterialUsage(ctx, fieldName, days)
	}, nil)
}

// ============================================================================
// 更新系（書き込み後に関連キーを無効化）
// ============================================================================

// CompleteTask タスクを完了にし、タスクキャッシュを無効化する
func (s *Store) CompleteTask(ctx context.Context, planID string, completion model.TaskCompletion) error {
	if err := s.inner.CompleteTask(ctx, planID, completion); err != nil {
		return err
	}
	s.invalidate(ctx, keyTasks)
	return nil
}

// ScheduleNextTask タスクを自動生成し、タスクキャッシュを無効化する
func (s *Store) ScheduleNextTask(ctx context.Context, fieldName, taskType string, daysOffset int) (string, error) {
	planID, err := s.inner.ScheduleNextTask(ctx, fieldName, taskType, daysOffset)
	if err != nil {
		return "", err
	}
	s.invalidate(ctx, keyTasks)
	return planID, nil
}

// RecordWorkReport 作業報告を保存する（キャッシュ対象外なので素通し）
func (s *Store) RecordWorkReport(ctx context.Context, record *model.WorkRecord) error {
	return s.inner.RecordWorkReport(ctx, record)
}

// GetRecentWorkReports 作業報告を取得する（鮮度優先で素通し）
func (s *Store) GetRecentWorkReports(ctx context.Context, userID string, limit int) ([]*model.WorkRecord, error) {
	return s.inner.GetRecentWorkReports(ctx, userID, limit)
}

// invalidate 接頭辞に一致するキーを SCAN で消す
//
// KEYS は使わない（キー数が多いときに Redis をブロックするため）。
func (s *Store) invalidate(ctx context.Context, prefix string) {
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Printf("WARNING: cached: redis del %s: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("WARNING: cached: redis scan %s: %v", prefix, err)
	}
}

// Close Redis クライアントと内側のストアを閉じる
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return err
	}
	return s.inner.Close()
}
