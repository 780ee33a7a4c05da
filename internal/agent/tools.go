package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
	"github.com/tomiyasu0428/agri-ai-agent/internal/storage"
)

// ============================================================================
// ツール定義
// ============================================================================

// toolDeclarations モデルに渡す関数宣言。名前は農作業員向けの応答文と対応する
func toolDeclarations() []*genai.Tool {
	return []*genai.Tool{
		{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				{
					Name:        "get_today_tasks",
					Description: "指定した担当者のその日の農作業タスクを取得する",
					Parameters: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"worker_id": {
								Type:        genai.TypeString,
								Description: "担当者名（例：田中、佐藤）",
							},
							"date": {
								Type:        genai.TypeString,
								Description: "対象日（YYYY-MM-DD、省略時は今日）",
							},
						},
						Required: []string{"worker_id"},
					},
				},
				{
					Name:        "complete_task",
					Description: "農作業タスクを完了として記録する",
					Parameters: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"task_id": {
								Type:        genai.TypeString,
								Description: "作業計画ID（get_today_tasks の結果から分かる場合）",
							},
							"task_description": {
								Type:        genai.TypeString,
								Description: "完了した作業の内容",
							},
							"field_name": {
								Type:        genai.TypeString,
								Description: "作業した圃場名",
							},
							"completion_notes": {
								Type:        genai.TypeString,
								Description: "補足メモ",
							},
						},
						Required: []string{"task_description", "field_name"},
					},
				},
				{
					Name:        "get_field_status",
					Description: "圃場の現在の状況（作付・最近の資材使用）を確認する",
					Parameters: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"field_name": {
								Type:        genai.TypeString,
								Description: "確認する圃場名",
							},
						},
						Required: []string{"field_name"},
					},
				},
				{
					Name:        "recommend_pesticide",
					Description: "圃場と作物に応じた農薬・資材の推奨を取得する",
					Parameters: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"field_name": {
								Type:        genai.TypeString,
								Description: "対象の圃場名",
							},
							"crop": {
								Type:        genai.TypeString,
								Description: "対象の作物名",
							},
							"issue": {
								Type:        genai.TypeString,
								Description: "具体的な病害虫の問題（任意）",
							},
						},
						Required: []string{"field_name", "crop"},
					},
				},
			},
		},
	}
}

// ============================================================================
// ツール実行
// ============================================================================

// toolRunner ツール呼び出しをストア操作に変換する
type toolRunner struct {
	store storage.AgriStore
	now   func() time.Time
}

// run 関数呼び出しを実行して農作業員向けの文面を返す。
// 失敗してもエラーは返さず文面に埋める（モデルがリカバリーできるように）。
func (r *toolRunner) run(ctx context.Context, name string, args map[string]any) string {
	switch name {
	case "get_today_tasks":
		return r.getTodayTasks(ctx, args)
	case "complete_task":
		return r.completeTask(ctx, args)
	case "get_field_status":
		return r.getFieldStatus(ctx, args)
	case "recommend_pesticide":
		return r.recommendPesticide(ctx, args)
	default:
		return fmt.Sprintf("未知のツールです: %s", name)
	}
}

// stringArg 引数マップから文字列を取り出す
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func (r *toolRunner) getTodayTasks(ctx context.Context, args map[string]any) string {
	workerID := stringArg(args, "worker_id")
	date := stringArg(args, "date")
	if date == "" {
		date = r.now().Format("2006-01-02")
	}

	tasks, err := r.store.GetTodayTasks(ctx, workerID, date)
	if err != nil {
		return fmt.Sprintf("タスクの取得中にエラーが発生しました: %v", err)
	}
	if len(tasks) == 0 {
		return fmt.Sprintf("%sさんの%sのタスクはありません。", workerID, date)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%sさんの%sのタスク:\n", workerID, date)
	for i, task := range tasks {
		fmt.Fprintf(&b, "%d. %s - %s (状態: %s)", i+1, orNA(task.FieldName), orNA(task.TaskName), orNA(task.Status))
		if task.PlanID != "" {
			fmt.Fprintf(&b, " [ID: %s]", task.PlanID)
		}
		if task.ScheduledDate != "" {
			fmt.Fprintf(&b, " 予定日: %s", task.ScheduledDate)
		}
		if i < len(tasks)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (r *toolRunner) completeTask(ctx context.Context, args map[string]any) string {
	taskID := stringArg(args, "task_id")
	description := stringArg(args, "task_description")
	fieldName := stringArg(args, "field_name")
	notes := stringArg(args, "completion_notes")
	if notes == "" {
		notes = description
	}

	if taskID != "" {
		completion := model.TaskCompletion{
			CompletedAt: r.now().Format(time.RFC3339),
			Details:     notes,
		}
		if err := r.store.CompleteTask(ctx, taskID, completion); err != nil {
			return fmt.Sprintf("タスクの完了処理中にエラーが発生しました: %v", err)
		}
	}

	// 防除は定期作業なので 7 日後を自動スケジューリングする
	if strings.Contains(description, "防除") {
		if _, err := r.store.ScheduleNextTask(ctx, fieldName, "防除", 7); err != nil {
			return fmt.Sprintf("タスク完了: %sでの%sが完了しました。（次回防除の自動登録に失敗: %v）",
				fieldName, description, err)
		}
		return fmt.Sprintf("タスク完了: %sでの%sが完了しました。次回の防除を7日後に登録しました。",
			fieldName, description)
	}

	return fmt.Sprintf("タスク完了: %sでの%sが完了しました。", fieldName, description)
}

func (r *toolRunner) getFieldStatus(ctx context.Context, args map[string]any) string {
	fieldName := stringArg(args, "field_name")

	field, err := r.store.GetFieldStatus(ctx, fieldName)
	if err != nil {
		return fmt.Sprintf("圃場情報の取得中にエラーが発生しました: %v", err)
	}
	if field == nil {
		return fmt.Sprintf("圃場 '%s' の情報が見つかりません。", fieldName)
	}

	lines := []string{fmt.Sprintf("圃場: %s", field.FieldName)}
	if field.FieldID != "" {
		lines = append(lines, fmt.Sprintf("圃場ID: %s", field.FieldID))
	}
	if field.Area > 0 {
		lines = append(lines, fmt.Sprintf("面積: %g ha", field.Area))
	}

	if len(field.PlantingPlans) > 0 {
		lines = append(lines, "関連作付計画:")
		for _, plan := range field.PlantingPlans {
			line := fmt.Sprintf("  - %s: %s", plan.PlanID, plan.Crop)
			if plan.PlantedDate != "" {
				line += fmt.Sprintf("（定植日: %s）", plan.PlantedDate)
			}
			lines = append(lines, line)
		}
	}

	if len(field.RecentMaterialUsage) > 0 {
		lines = append(lines, "最近の資材使用:")
		for _, usage := range firstN(field.RecentMaterialUsage, 3) {
			line := fmt.Sprintf("  - %s: %s", orNA(usage.UsedOn), orNA(usage.MaterialName))
			if usage.Dilution != "" {
				line += fmt.Sprintf(" %s", usage.Dilution)
			}
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n")
}

func (r *toolRunner) recommendPesticide(ctx context.Context, args map[string]any) string {
	fieldName := stringArg(args, "field_name")
	crop := stringArg(args, "crop")

	recs, err := r.store.GetPesticideRecommendations(ctx, fieldName, crop)
	if err != nil {
		return fmt.Sprintf("農薬推奨の処理中にエラーが発生しました: %v", err)
	}
	if len(recs) == 0 {
		return fmt.Sprintf("%sの%sに対する農薬の推奨情報がありません。", fieldName, crop)
	}

	lines := []string{fmt.Sprintf("%sの%sに対する資材推奨:", fieldName, crop)}
	for i, rec := range recs {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, rec.Name))
		lines = append(lines, fmt.Sprintf("   分類: %s", orNA(rec.Category)))
		if rec.DilutionGuide != "" {
			lines = append(lines, fmt.Sprintf("   希釈倍率: %s", rec.DilutionGuide))
		}
		if rec.LastUsed != "" {
			lines = append(lines, fmt.Sprintf("   最終使用日: %s（直近90日で%d回）", rec.LastUsed, rec.RecentUsageCount))
		}
	}

	usage, err := r.store.GetRecentMaterialUsage(ctx, fieldName, 30)
	if err == nil && len(usage) > 0 {
		lines = append(lines, "", "最近の使用履歴:")
		for _, u := range firstN(usage, 2) {
			lines = append(lines, fmt.Sprintf("  - %s: %s", orNA(u.UsedOn), orNA(u.MaterialName)))
		}
	}

	lines = append(lines, "", "注意: 天候条件と前回散布からの間隔を確認してください。")
	return strings.Join(lines, "\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func firstN[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
