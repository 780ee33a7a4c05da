package storage

// mock.go テスト用のメモリ内 AgriStore 実装。
// mongostore と同じ観測可能な挙動（未ヒットの扱い、並び順、件数制限）を返す。

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
)

// pesticideCategories 農薬推奨の対象となる資材分類
var pesticideCategories = []string{"農薬", "防除剤", "殺虫剤", "殺菌剤"}

// MemoryStore メモリ内の AgriStore 実装
type MemoryStore struct {
	mu sync.RWMutex

	tasks         []*model.TaskPlan
	fields        []*model.Field
	plantingPlans []*model.PlantingPlan
	materials     []*model.Material
	materialUsage []*model.MaterialUsageRecord
	workRecords   []*model.WorkRecord

	now func() time.Time
}

// NewMemoryStore 空のメモリストアを作る
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// SetNow テストで時計を固定する
func (s *MemoryStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

var _ AgriStore = (*MemoryStore)(nil)

// ============================================================================
// シード（テスト用）
// ============================================================================

// AddTaskPlan 作業計画を追加する
func (s *MemoryStore) AddTaskPlan(task *model.TaskPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

// AddField 圃場を追加する
func (s *MemoryStore) AddField(field *model.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = append(s.fields, field)
}

// AddPlantingPlan 作付計画を追加する
func (s *MemoryStore) AddPlantingPlan(plan *model.PlantingPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plantingPlans = append(s.plantingPlans, plan)
}

// AddMaterial 資材を追加する
func (s *MemoryStore) AddMaterial(m *model.Material) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials = append(s.materials, m)
}

// AddMaterialUsage 資材使用記録を追加する
func (s *MemoryStore) AddMaterialUsage(rec *model.MaterialUsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materialUsage = append(s.materialUsage, rec)
}

// ============================================================================
// AgriStore
// ============================================================================

// GetTodayTasks 指定日の担当タスクを未完了分だけ返す
func (s *MemoryStore) GetTodayTasks(ctx context.Context, workerID, date string) ([]*model.TaskPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []*model.TaskPlan{}
	for _, task := range s.tasks {
		if task.AssignedTo != workerID || task.ScheduledDate != date {
			continue
		}
		if task.Status == model.TaskStatusDone {
			continue
		}
		t := *task
		s.joinTaskInfo(&t)
		results = append(results, &t)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].ScheduledDate != results[j].ScheduledDate {
			return results[i].ScheduledDate < results[j].ScheduledDate
		}
		return results[i].PlanID < results[j].PlanID
	})
	return results, nil
}

// joinTaskInfo 作付計画経由で圃場名と作物名を合成する（ロック保持中に呼ぶ）
func (s *MemoryStore) joinTaskInfo(task *model.TaskPlan) {
	for _, plan := range s.plantingPlans {
		if plan.PlanID != task.PlantingPlanID {
			continue
		}
		task.CropName = plan.Crop
		for _, f := range s.fields {
			if f.FieldID == plan.FieldID {
				task.FieldName = f.FieldName
				break
			}
		}
		return
	}
}

// CompleteTask 作業計画 ID のタスクを完了にする
func (s *MemoryStore) CompleteTask(ctx context.Context, planID string, completion model.TaskCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		if task.PlanID != planID {
			continue
		}
		task.Status = model.TaskStatusDone
		task.CompletedDate = s.now().Format("2006-01-02")
		if completion.Details != "" {
			task.Details = completion.Details
		}
		return nil
	}
	return ErrNotFound
}

// GetFieldStatus 圃場名で圃場情報を返す（未ヒットは (nil, nil)）
func (s *MemoryStore) GetFieldStatus(ctx context.Context, fieldName string) (*model.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	field := s.findFieldByName(fieldName)
	if field == nil {
		return nil, nil
	}

	result := *field
	for _, plan := range s.plantingPlans {
		if plan.FieldID == field.FieldID {
			result.PlantingPlans = append(result.PlantingPlans, *plan)
		}
	}
	result.RecentMaterialUsage = s.usageForField(field.FieldID, 30, 5)
	return &result, nil
}

func (s *MemoryStore) findFieldByName(fieldName string) *model.Field {
	for _, f := range s.fields {
		if f.FieldName == fieldName {
			return f
		}
	}
	return nil
}

// usageForField 圃場の直近 days 日の使用記録を新しい順で返す（ロック保持中に呼ぶ）
func (s *MemoryStore) usageForField(fieldID string, days, limit int) []model.MaterialUsageRecord {
	cutoff := s.now().AddDate(0, 0, -days).Format("2006-01-02")

	var records []model.MaterialUsageRecord
	for _, rec := range s.materialUsage {
		if rec.FieldID == fieldID && rec.UsedOn >= cutoff {
			records = append(records, *rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].UsedOn > records[j].UsedOn })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// GetPesticideRecommendations 作物に合う資材をローテーション順で返す
//
// 直近 90 日の使用回数が少ないものを先に出し、同数は資材名順。
func (s *MemoryStore) GetPesticideRecommendations(ctx context.Context, fieldName, crop string) ([]*model.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().AddDate(0, 0, -90).Format("2006-01-02")
	cropLower := strings.ToLower(crop)

	results := []*model.Material{}
	for _, m := range s.materials {
		if !materialMatches(m, cropLower) {
			continue
		}
		item := *m
		item.RecentUsageCount = 0
		item.LastUsed = ""
		for _, rec := range s.materialUsage {
			if rec.MaterialName == m.Name && rec.UsedOn >= cutoff {
				item.RecentUsageCount++
				if rec.UsedOn > item.LastUsed {
					item.LastUsed = rec.UsedOn
				}
			}
		}
		results = append(results, &item)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].RecentUsageCount != results[j].RecentUsageCount {
			return results[i].RecentUsageCount < results[j].RecentUsageCount
		}
		return results[i].Name < results[j].Name
	})
	if len(results) > 10 {
		results = results[:10]
	}
	return results, nil
}

func materialMatches(m *model.Material, cropLower string) bool {
	if cropLower != "" && strings.Contains(strings.ToLower(m.TargetCrops), cropLower) {
		return true
	}
	for _, cat := range pesticideCategories {
		if m.Category == cat {
			return true
		}
	}
	return false
}

// GetRecentMaterialUsage 圃場の直近 days 日の資材使用記録を返す
func (s *MemoryStore) GetRecentMaterialUsage(ctx context.Context, fieldName string, days int) ([]*model.MaterialUsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	field := s.findFieldByName(fieldName)
	if field == nil {
		return []*model.MaterialUsageRecord{}, nil
	}

	records := s.usageForField(field.FieldID, days, 0)
	results := make([]*model.MaterialUsageRecord, len(records))
	for i := range records {
		results[i] = &records[i]
	}
	return results, nil
}

// ScheduleNextTask 指定圃場に daysOffset 日後のタスクを自動生成する
func (s *MemoryStore) ScheduleNextTask(ctx context.Context, fieldName, taskType string, daysOffset int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	field := s.findFieldByName(fieldName)
	if field == nil {
		return "", fmt.Errorf("field %q: %w", fieldName, ErrNotFound)
	}

	now := s.now()
	task := &model.TaskPlan{
		PlanID:        fmt.Sprintf("AUTO_%s_%s_%s", fieldName, taskType, now.Format("20060102_150405")),
		TaskName:      fmt.Sprintf("%s(%d日後)", taskType, daysOffset),
		FieldID:       field.FieldID,
		ScheduledDate: now.AddDate(0, 0, daysOffset).Format("2006-01-02"),
		Status:        model.TaskStatusScheduled,
		CreatedDate:   now.Format("2006-01-02"),
		AutoGenerated: true,
	}
	s.tasks = append(s.tasks, task)
	return task.PlanID, nil
}

// RecordWorkReport 作業報告を保存する
func (s *MemoryStore) RecordWorkReport(ctx context.Context, record *model.WorkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *record
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.now()
	}
	s.workRecords = append(s.workRecords, &rec)
	return nil
}

// GetRecentWorkReports ユーザーの作業報告を新しい順で返す
func (s *MemoryStore) GetRecentWorkReports(ctx context.Context, userID string, limit int) ([]*model.WorkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []*model.WorkRecord{}
	for _, rec := range s.workRecords {
		if rec.UserID == userID {
			r := *rec
			results = append(results, &r)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].RecordedAt.After(results[j].RecordedAt) })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close メモリストアでは何もしない
func (s *MemoryStore) Close() error {
	return nil
}
