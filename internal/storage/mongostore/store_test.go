package mongostore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
	"github.com/tomiyasu0428/agri-ai-agent/internal/storage"
)

// testStore テスト用 Store を作る。専用データベースを使い毎回クリアする
func testStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	s, err := NewStore(uri, "agri_ai_test")
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	ctx := context.Background()
	if err := s.db.Drop(ctx); err != nil {
		t.Fatalf("Failed to drop test database: %v", err)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		t.Fatalf("Failed to create indexes: %v", err)
	}

	// 時刻を固定してテストの日付計算を安定させる
	s.now = func() time.Time {
		return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	}

	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close()
	})

	return s
}

// seedMasterData 圃場・作付計画・作業計画の最小セットを投入する
func seedMasterData(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	docs := []struct {
		col string
		doc interface{}
	}{
		{ColFields, &model.Field{ID: "field-f14", FieldID: "F14", FieldName: "F14", Area: 1.2}},
		{ColPlantingPlans, &model.PlantingPlan{ID: "pp-1", PlanID: "PP-1", FieldID: "F14", Crop: "大豆"}},
		{ColTaskPlans, &model.TaskPlan{
			ID: "tp-1", PlanID: "TP-1", TaskName: "防除",
			FieldID: "F14", PlantingPlanID: "PP-1",
			AssignedTo: "user1", ScheduledDate: "2026-03-10",
			Status: model.TaskStatusScheduled,
		}},
	}
	for _, d := range docs {
		if err := insertOne(ctx, s.col(d.col), d.doc); err != nil {
			t.Fatalf("Failed to seed %s: %v", d.col, err)
		}
	}
}

func TestGetTodayTasks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedMasterData(t, s)

	tasks, err := s.GetTodayTasks(ctx, "user1", "2026-03-10")
	if err != nil {
		t.Fatalf("GetTodayTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}
	if tasks[0].FieldName != "F14" {
		t.Errorf("Expected joined field name F14, got %q", tasks[0].FieldName)
	}
	if tasks[0].CropName != "大豆" {
		t.Errorf("Expected joined crop name 大豆, got %q", tasks[0].CropName)
	}

	// 完了済みタスクは出てこない
	if err := s.CompleteTask(ctx, "TP-1", model.TaskCompletion{Details: "防除 完了"}); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	tasks, err = s.GetTodayTasks(ctx, "user1", "2026-03-10")
	if err != nil {
		t.Fatalf("GetTodayTasks after completion failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Expected no pending tasks, got %d", len(tasks))
	}
}

func TestCompleteTask_NotFound(t *testing.T) {
	s := testStore(t)

	err := s.CompleteTask(context.Background(), "missing", model.TaskCompletion{})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestScheduleNextTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedMasterData(t, s)

	planID, err := s.ScheduleNextTask(ctx, "F14", "防除", 7)
	if err != nil {
		t.Fatalf("ScheduleNextTask failed: %v", err)
	}

	task, err := findOne[model.TaskPlan](ctx, s.col(ColTaskPlans),
		bson.D{{Key: "作業計画ID", Value: planID}})
	if err != nil {
		t.Fatalf("Lookup scheduled task failed: %v", err)
	}
	if task == nil {
		t.Fatal("Scheduled task not found")
	}
	if task.ScheduledDate != "2026-03-17" {
		t.Errorf("Expected scheduled date 2026-03-17, got %q", task.ScheduledDate)
	}
	if !task.AutoGenerated {
		t.Error("Expected auto generated flag")
	}

	// 未知の圃場は ErrNotFound
	if _, err := s.ScheduleNextTask(ctx, "存在しない圃場", "防除", 7); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown field, got %v", err)
	}
}

func TestGetFieldStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedMasterData(t, s)

	if err := insertOne(ctx, s.col(ColMaterialUsage), &model.MaterialUsageRecord{
		ID: "mu-1", FieldID: "F14", MaterialName: "クプロシールド",
		UsedOn: "2026-03-01", Dilution: "1000倍",
	}); err != nil {
		t.Fatalf("Failed to seed material usage: %v", err)
	}

	field, err := s.GetFieldStatus(ctx, "F14")
	if err != nil {
		t.Fatalf("GetFieldStatus failed: %v", err)
	}
	if field == nil {
		t.Fatal("Field not found")
	}
	if len(field.PlantingPlans) != 1 || field.PlantingPlans[0].Crop != "大豆" {
		t.Errorf("Expected joined planting plan with 大豆, got %+v", field.PlantingPlans)
	}
	if len(field.RecentMaterialUsage) != 1 {
		t.Errorf("Expected 1 recent usage record, got %d", len(field.RecentMaterialUsage))
	}

	// 未ヒットは (nil, nil)
	missing, err := s.GetFieldStatus(ctx, "存在しない圃場")
	if err != nil {
		t.Fatalf("GetFieldStatus for missing field failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing field, got %+v", missing)
	}
}

func TestGetPesticideRecommendations(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	materials := []*model.Material{
		{ID: "m-1", Name: "クプロシールド", Category: "殺菌剤", TargetCrops: "大豆"},
		{ID: "m-2", Name: "アミスター", Category: "殺菌剤", TargetCrops: "大豆"},
	}
	for _, m := range materials {
		if err := insertOne(ctx, s.col(ColMaterials), m); err != nil {
			t.Fatalf("Failed to seed material: %v", err)
		}
	}
	// クプロシールドだけ直近に使用済み → ローテーションで後ろに回る
	if err := insertOne(ctx, s.col(ColMaterialUsage), &model.MaterialUsageRecord{
		ID: "mu-1", FieldID: "F14", MaterialName: "クプロシールド", UsedOn: "2026-03-01",
	}); err != nil {
		t.Fatalf("Failed to seed material usage: %v", err)
	}

	recs, err := s.GetPesticideRecommendations(ctx, "F14", "大豆")
	if err != nil {
		t.Fatalf("GetPesticideRecommendations failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 recommendations, got %d", len(recs))
	}
	if recs[0].Name != "アミスター" {
		t.Errorf("Expected unused material first, got %q", recs[0].Name)
	}
	if recs[1].RecentUsageCount != 1 {
		t.Errorf("Expected usage count 1, got %d", recs[1].RecentUsageCount)
	}
}

func TestWorkRecordRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	record := &model.WorkRecord{
		UserID:  "user1",
		RawText: "F14で防除を完了しました",
		Report:  model.ParsedWorkReport{TaskName: "防除", FieldName: "F14", ConfidenceScore: 0.8},
	}
	if err := s.RecordWorkReport(ctx, record); err != nil {
		t.Fatalf("RecordWorkReport failed: %v", err)
	}

	records, err := s.GetRecentWorkReports(ctx, "user1", 10)
	if err != nil {
		t.Fatalf("GetRecentWorkReports failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Report.TaskName != "防除" {
		t.Errorf("Expected parsed task 防除, got %q", records[0].Report.TaskName)
	}
	if records[0].RecordedAt.IsZero() {
		t.Error("Expected recorded_at to be filled")
	}
}
