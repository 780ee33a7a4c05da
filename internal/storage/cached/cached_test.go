package cached

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
	"github.com/tomiyasu0428/agri-ai-agent/internal/storage"
)

// testClient テスト用 Redis クライアントを作る。接続できなければスキップ
func testClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test db: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

// seededInner タスク 1 件入りのメモリストアを作る
func seededInner() *storage.MemoryStore {
	inner := storage.NewMemoryStore()
	inner.AddField(&model.Field{FieldID: "F14", FieldName: "F14"})
	inner.AddPlantingPlan(&model.PlantingPlan{PlanID: "PP-1", FieldID: "F14", Crop: "大豆"})
	inner.AddTaskPlan(&model.TaskPlan{
		PlanID: "TP-1", TaskName: "防除",
		FieldID: "F14", PlantingPlanID: "PP-1",
		AssignedTo: "user1", ScheduledDate: "2026-03-10",
		Status: model.TaskStatusScheduled,
	})
	return inner
}

func TestStore_ReadThrough(t *testing.T) {
	client := testClient(t)
	s := NewStore(seededInner(), client, time.Minute)
	ctx := context.Background()

	// 1 回目はミス、2 回目はヒット
	tasks, err := s.GetTodayTasks(ctx, "user1", "2026-03-10")
	if err != nil {
		t.Fatalf("GetTodayTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}

	tasks, err = s.GetTodayTasks(ctx, "user1", "2026-03-10")
	if err != nil {
		t.Fatalf("GetTodayTasks (cached) failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].TaskName != "防除" {
		t.Fatalf("Cached result mismatch: %+v", tasks)
	}

	stats := s.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit / 1 miss, got %+v", stats)
	}
}

func TestStore_InvalidateOnComplete(t *testing.T) {
	client := testClient(t)
	s := NewStore(seededInner(), client, time.Minute)
	ctx := context.Background()

	if _, err := s.GetTodayTasks(ctx, "user1", "2026-03-10"); err != nil {
		t.Fatalf("GetTodayTasks failed: %v", err)
	}

	// 完了でタスクキャッシュが無効化され、次の参照は空になる
	if err := s.CompleteTask(ctx, "TP-1", model.TaskCompletion{}); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	tasks, err := s.GetTodayTasks(ctx, "user1", "2026-03-10")
	if err != nil {
		t.Fatalf("GetTodayTasks after completion failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Expected stale cache to be invalidated, got %d tasks", len(tasks))
	}
}

func TestStore_FieldStatusMissNotCached(t *testing.T) {
	client := testClient(t)
	s := NewStore(seededInner(), client, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		field, err := s.GetFieldStatus(ctx, "存在しない圃場")
		if err != nil {
			t.Fatalf("GetFieldStatus failed: %v", err)
		}
		if field != nil {
			t.Fatalf("Expected nil for missing field, got %+v", field)
		}

		// null はそもそも書き込まれない
		n, err := client.Exists(ctx, keyField+"存在しない圃場").Result()
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if n != 0 {
			t.Fatalf("Expected no cache entry for missing field, found one")
		}
	}

	// 未ヒットはキャッシュされないので毎回ミス
	if stats := s.GetStats(); stats.Misses != 2 {
		t.Errorf("Expected 2 misses, got %+v", stats)
	}
}

func TestStore_FieldStatusCachedWhenFound(t *testing.T) {
	client := testClient(t)
	s := NewStore(seededInner(), client, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		field, err := s.GetFieldStatus(ctx, "F14")
		if err != nil {
			t.Fatalf("GetFieldStatus failed: %v", err)
		}
		if field == nil || field.FieldName != "F14" {
			t.Fatalf("Unexpected field: %+v", field)
		}
	}

	stats := s.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit / 1 miss, got %+v", stats)
	}
}

func TestStore_PesticideRecommendationsCached(t *testing.T) {
	client := testClient(t)
	inner := seededInner()
	inner.AddMaterial(&model.Material{Name: "アミスター", Category: "殺菌剤", TargetCrops: "大豆"})
	s := NewStore(inner, client, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		recs, err := s.GetPesticideRecommendations(ctx, "F14", "大豆")
		if err != nil {
			t.Fatalf("GetPesticideRecommendations failed: %v", err)
		}
		if len(recs) != 1 {
			t.Fatalf("Expected 1 recommendation, got %d", len(recs))
		}
	}

	stats := s.GetStats()
	if stats.Hits != 1 {
		t.Errorf("Expected second read to hit cache, got %+v", stats)
	}
}
