package model

import "time"

// ConversationContext ユーザー単位の対話文脈
//
// 初回参照時に遅延生成され、プロセス存続中はメモリに保持される
// （明示リセットまたは時間ベースの掃除で破棄）。
// スロットは推論のたびに上書きされる（last-write-wins、マージしない）。
type ConversationContext struct {
	// UserID 外部で割り当てられる安定したユーザー識別子
	UserID string `json:"user_id" bson:"user_id"`

	// 現在のスロット（空文字列 = 未設定）
	CurrentTask  string `json:"current_task,omitempty" bson:"current_task,omitempty"`
	CurrentField string `json:"current_field,omitempty" bson:"current_field,omitempty"`
	CurrentCrop  string `json:"current_crop,omitempty" bson:"current_crop,omitempty"`
	WorkingDate  string `json:"working_date,omitempty" bson:"working_date,omitempty"`

	// RecentQuestions 直近の質問履歴（古い順、上限超過で先頭から削除）
	RecentQuestions []QuestionEntry `json:"recent_questions" bson:"recent_questions"`

	// WorkHistory 完了作業の履歴（同じ FIFO 制限）
	WorkHistory []WorkEntry `json:"work_history" bson:"work_history"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// QuestionEntry 質問履歴の 1 エントリ
type QuestionEntry struct {
	Question  string    `json:"question" bson:"question"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// WorkEntry 作業履歴の 1 エントリ
//
// 解析済み報告の要点に記録時刻を付けたもの。
type WorkEntry struct {
	TaskName         string          `json:"task_name,omitempty" bson:"task_name,omitempty"`
	FieldName        string          `json:"field_name,omitempty" bson:"field_name,omitempty"`
	CropName         string          `json:"crop_name,omitempty" bson:"crop_name,omitempty"`
	CompletionStatus string          `json:"completion_status,omitempty" bson:"completion_status,omitempty"`
	MaterialsUsed    []MaterialUsage `json:"materials_used,omitempty" bson:"materials_used,omitempty"`
	ConfidenceScore  float64         `json:"confidence_score" bson:"confidence_score"`
	Timestamp        time.Time       `json:"timestamp" bson:"timestamp"`
}

// WorkEntryFromReport 解析済み報告から履歴エントリを作る
func WorkEntryFromReport(r *ParsedWorkReport, at time.Time) WorkEntry {
	return WorkEntry{
		TaskName:         r.TaskName,
		FieldName:        r.FieldName,
		CropName:         r.CropName,
		CompletionStatus: r.CompletionStatus,
		MaterialsUsed:    r.MaterialsUsed,
		ConfidenceScore:  r.ConfidenceScore,
		Timestamp:        at,
	}
}
