// Package model 共有データモデルを定義する
//
// report.go は作業報告解析の入出力モデル：
//   - ParsedWorkReport：自然文から抽出した構造化作業報告
//   - MaterialUsage：使用資材エントリ（希釈倍率つき）
//   - Quantity：数量表現の抽出結果
//   - ValidationIssues：検証結果（エラー／警告／改善提案）
package model

// ParsedWorkReport 解析済み作業報告
//
// すべてのフィールドは任意で、抽出できなかった項目は空のまま残る。
// 値オブジェクトであり、返却後に書き換えない。
type ParsedWorkReport struct {
	// TaskName 正規化済みの作業名（例："防除"）
	TaskName string `json:"task_name,omitempty" bson:"task_name,omitempty"`

	// FieldName 圃場名（例："F14"、"橋向こう圃場"）
	FieldName string `json:"field_name,omitempty" bson:"field_name,omitempty"`

	// CropName 正規化済みの作物名
	CropName string `json:"crop_name,omitempty" bson:"crop_name,omitempty"`

	// WorkerName 作業者名（報告文に含まれる場合のみ）
	WorkerName string `json:"worker_name,omitempty" bson:"worker_name,omitempty"`

	// CompletionStatus "完了" / "未完了"
	CompletionStatus string `json:"completion_status,omitempty" bson:"completion_status,omitempty"`

	// WorkDate ISO 形式の作業日（YYYY-MM-DD）
	WorkDate string `json:"work_date,omitempty" bson:"work_date,omitempty"`

	// StartTime / EndTime 作業時間帯（HH:MM）
	StartTime string `json:"start_time,omitempty" bson:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty" bson:"end_time,omitempty"`

	// MaterialsUsed 使用資材（抽出順）
	MaterialsUsed []MaterialUsage `json:"materials_used,omitempty" bson:"materials_used,omitempty"`

	// QuantityApplied 正規化済み数量文字列（例："5.2 ha"）
	QuantityApplied string `json:"quantity_applied,omitempty" bson:"quantity_applied,omitempty"`

	// WeatherCondition 天候キーワードまたは記述
	WeatherCondition string `json:"weather_condition,omitempty" bson:"weather_condition,omitempty"`

	// Notes 備考（明示ラベル、なければ文脈キーワードの合成）
	Notes string `json:"notes,omitempty" bson:"notes,omitempty"`

	// NextTaskSuggestion 次回作業の提案（正規化済み作業名）
	NextTaskSuggestion string `json:"next_task_suggestion,omitempty" bson:"next_task_suggestion,omitempty"`

	// ConfidenceScore 抽出完全性の加点ヒューリスティック [0.0, 1.0]
	// 統計的な確信度ではない点に注意
	ConfidenceScore float64 `json:"confidence_score" bson:"confidence_score"`
}

// MaterialUsage 使用資材エントリ
type MaterialUsage struct {
	// Name 正規化済み資材名
	Name string `json:"name" bson:"name"`

	// OriginalName 報告文中の表記そのまま
	OriginalName string `json:"original_name" bson:"original_name"`

	// Dilution 希釈倍率（例："1000倍"）。文全体から検出する
	Dilution string `json:"dilution,omitempty" bson:"dilution,omitempty"`
}

// Quantity 数量表現の抽出結果
type Quantity struct {
	// Value 数値部分の文字列表記
	Value string `json:"value" bson:"value"`

	// Unit 元テキストの単位表記
	Unit string `json:"unit" bson:"unit"`

	// Normalized 正規化済み表記（例："5.2 ha"）
	Normalized string `json:"normalized" bson:"normalized"`
}

// ValidationIssues 作業報告の検証結果
//
// 自然文の欠落・不整合は例外ではなく issue として返す。
type ValidationIssues struct {
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// HasErrors エラーが 1 件以上あるか
func (v *ValidationIssues) HasErrors() bool {
	return len(v.Errors) > 0
}
