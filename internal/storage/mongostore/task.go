package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
	"github.com/tomiyasu0428/agri-ai-agent/internal/storage"
)

// ============================================================================
// 作業計画
// ============================================================================

// GetTodayTasks 指定日の担当タスクを未完了分だけ返す
//
// 作付計画と圃場データへの JOIN を 1 本の集約パイプラインで行い、
// 圃場名と作物名を合成したうえで予定日・作業計画 ID 順に返す。
func (s *Store) GetTodayTasks(ctx context.Context, workerID, date string) ([]*model.TaskPlan, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "担当者", Value: workerID},
			{Key: "予定日", Value: date},
			{Key: "ステータス", Value: bson.D{{Key: "$ne", Value: model.TaskStatusDone}}},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: ColPlantingPlans},
			{Key: "localField", Value: "関連する作付計画"},
			{Key: "foreignField", Value: "作付計画ID"},
			{Key: "as", Value: "planting_info"},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: ColFields},
			{Key: "localField", Value: "planting_info.圃場"},
			{Key: "foreignField", Value: "圃場ID"},
			{Key: "as", Value: "field_info"},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "圃場名", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$field_info.圃場名", 0}}}},
			{Key: "作物名", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$planting_info.作物", 0}}}},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "予定日", Value: 1},
			{Key: "作業計画ID", Value: 1},
		}}},
	}

	return aggregate[model.TaskPlan](ctx, s.col(ColTaskPlans), pipeline)
}

// CompleteTask 作業計画 ID のタスクを完了にする
func (s *Store) CompleteTask(ctx context.Context, planID string, completion model.TaskCompletion) error {
	update := bson.D{
		{Key: "ステータス", Value: model.TaskStatusDone},
		{Key: "完了日", Value: s.now().Format("2006-01-02")},
	}
	if completion.CompletedAt != "" {
		update = append(update, bson.E{Key: "完了時刻", Value: completion.CompletedAt})
	}
	if completion.Details != "" {
		update = append(update, bson.E{Key: "実施内容", Value: completion.Details})
	}

	return updateFields(ctx, s.col(ColTaskPlans),
		bson.D{{Key: "作業計画ID", Value: planID}}, update)
}

// ScheduleNextTask 指定圃場に daysOffset 日後のタスクを自動生成する
func (s *Store) ScheduleNextTask(ctx context.Context, fieldName, taskType string, daysOffset int) (string, error) {
	field, err := findOne[model.Field](ctx, s.col(ColFields),
		bson.D{{Key: "圃場名", Value: fieldName}})
	if err != nil {
		return "", err
	}
	if field == nil {
		return "", fmt.Errorf("field %q: %w", fieldName, storage.ErrNotFound)
	}

	now := s.now()
	planID := fmt.Sprintf("AUTO_%s_%s_%s", fieldName, taskType, now.Format("20060102_150405"))
	task := &model.TaskPlan{
		ID:            planID, // _id は文字列で統一する（ObjectID をデコードできないため）
		PlanID:        planID,
		TaskName:      fmt.Sprintf("%s(%d日後)", taskType, daysOffset),
		FieldID:       field.FieldID,
		ScheduledDate: now.AddDate(0, 0, daysOffset).Format("2006-01-02"),
		Status:        model.TaskStatusScheduled,
		CreatedDate:   now.Format("2006-01-02"),
		AutoGenerated: true,
	}

	if err := insertOne(ctx, s.col(ColTaskPlans), task); err != nil {
		return "", err
	}
	return task.PlanID, nil
}
