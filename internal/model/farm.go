package model

// farm.go 農場マスタと作業計画のドキュメントモデル。
// bson フィールド名は既存データベースのスキーマ（日本語フィールド名）を
// そのまま使う。コレクション名は storage/mongostore の定数を参照。

import "time"

// タスクステータスの表記（絵文字込みで保存される）
const (
	TaskStatusScheduled = "🗓️ 予定"
	TaskStatusDone      = "✅ 完了"
)

// TaskPlan 作業計画の 1 ドキュメント
type TaskPlan struct {
	ID string `json:"id" bson:"_id,omitempty"`

	// PlanID 作業計画 ID（例："AUTO_F14_防除_20260310_090000"）
	PlanID string `json:"plan_id" bson:"作業計画ID"`

	// TaskName 作業名（例："防除(7日後)"）
	TaskName string `json:"task_name" bson:"タスク名"`

	// FieldID 圃場 ID（圃場データへの参照）
	FieldID string `json:"field_id" bson:"圃場"`

	// PlantingPlanID 関連する作付計画への参照
	PlantingPlanID string `json:"planting_plan_id,omitempty" bson:"関連する作付計画,omitempty"`

	// AssignedTo 担当者（ユーザー ID）
	AssignedTo string `json:"assigned_to,omitempty" bson:"担当者,omitempty"`

	// ScheduledDate 予定日（YYYY-MM-DD）
	ScheduledDate string `json:"scheduled_date" bson:"予定日"`

	// Status ステータス表記
	Status string `json:"status" bson:"ステータス"`

	// CompletedDate 完了日（YYYY-MM-DD、完了時のみ）
	CompletedDate string `json:"completed_date,omitempty" bson:"完了日,omitempty"`

	// Details 実施内容（完了報告の要約）
	Details string `json:"details,omitempty" bson:"実施内容,omitempty"`

	// CreatedDate 作成日（YYYY-MM-DD）
	CreatedDate string `json:"created_date,omitempty" bson:"作成日,omitempty"`

	// AutoGenerated 次回作業スケジュールで自動生成されたか
	AutoGenerated bool `json:"auto_generated,omitempty" bson:"自動生成,omitempty"`

	// 集約パイプラインの $lookup で合成されるフィールド
	FieldName string `json:"field_name,omitempty" bson:"圃場名,omitempty"`
	CropName  string `json:"crop_name,omitempty" bson:"作物名,omitempty"`
}

// TaskCompletion タスク完了時に記録する情報
type TaskCompletion struct {
	// CompletedAt 完了時刻（HH:MM）
	CompletedAt string `json:"completed_at,omitempty" bson:"完了時刻,omitempty"`

	// Details 実施内容
	Details string `json:"details,omitempty" bson:"実施内容,omitempty"`
}

// Field 圃場データの 1 ドキュメント
type Field struct {
	ID string `json:"id" bson:"_id,omitempty"`

	// FieldID 圃場 ID（例："F14"）
	FieldID string `json:"field_id" bson:"圃場ID"`

	// FieldName 圃場名（例："F14"、"橋向こう圃場"）
	FieldName string `json:"field_name" bson:"圃場名"`

	// Area 面積（ha）
	Area float64 `json:"area,omitempty" bson:"面積,omitempty"`

	// $lookup で合成される関連情報
	PlantingPlans       []PlantingPlan        `json:"planting_plans,omitempty" bson:"planting_plans,omitempty"`
	RecentMaterialUsage []MaterialUsageRecord `json:"recent_material_usage,omitempty" bson:"recent_material_usage,omitempty"`
}

// PlantingPlan 作付計画の 1 ドキュメント
type PlantingPlan struct {
	ID string `json:"id" bson:"_id,omitempty"`

	// PlanID 作付計画 ID
	PlanID string `json:"plan_id" bson:"作付計画ID"`

	// FieldID 圃場への参照
	FieldID string `json:"field_id" bson:"圃場"`

	// Crop 作物名
	Crop string `json:"crop" bson:"作物"`

	// PlantedDate 定植日（YYYY-MM-DD）
	PlantedDate string `json:"planted_date,omitempty" bson:"定植日,omitempty"`
}

// Material 資材データの 1 ドキュメント
type Material struct {
	ID string `json:"id" bson:"_id,omitempty"`

	// Name 資材名
	Name string `json:"name" bson:"資材名"`

	// Category 資材分類（農薬、肥料 など）
	Category string `json:"category,omitempty" bson:"資材分類,omitempty"`

	// TargetCrops 対象作物
	TargetCrops string `json:"target_crops,omitempty" bson:"対象作物,omitempty"`

	// DilutionGuide 推奨希釈倍率
	DilutionGuide string `json:"dilution_guide,omitempty" bson:"希釈倍率,omitempty"`

	// ローテーション判断用に $lookup で合成されるフィールド
	RecentUsageCount int    `json:"recent_usage_count,omitempty" bson:"recent_usage_count,omitempty"`
	LastUsed         string `json:"last_used,omitempty" bson:"last_used,omitempty"`
}

// MaterialUsageRecord 資材使用記録の 1 ドキュメント
type MaterialUsageRecord struct {
	ID string `json:"id" bson:"_id,omitempty"`

	// FieldID 圃場への参照
	FieldID string `json:"field_id" bson:"圃場"`

	// MaterialName 資材名
	MaterialName string `json:"material_name" bson:"資材名"`

	// UsedOn 使用日（YYYY-MM-DD）
	UsedOn string `json:"used_on" bson:"使用日"`

	// Dilution 希釈倍率（例："1000倍"）
	Dilution string `json:"dilution,omitempty" bson:"希釈倍率,omitempty"`

	// Category 資材分類（$lookup で合成）
	Category string `json:"category,omitempty" bson:"資材分類,omitempty"`
}

// WorkRecord 作業記録の 1 ドキュメント
//
// 報告の原文と解析結果をそのまま保存し、後からの再解析を可能にする。
type WorkRecord struct {
	ID string `json:"id" bson:"_id,omitempty"`

	// UserID 報告したユーザー
	UserID string `json:"user_id" bson:"ユーザーID"`

	// RawText 報告の原文
	RawText string `json:"raw_text" bson:"原文"`

	// Report 解析結果
	Report ParsedWorkReport `json:"report" bson:"解析結果"`

	// RecordedAt 記録時刻
	RecordedAt time.Time `json:"recorded_at" bson:"記録時刻"`
}
