// Package storage 永続化層の抽象インターフェースを定義する
//
// 設計原則：依存性逆転 (DIP)
//   - 呼び出し側はインターフェースだけに依存し、実装を知らない
//   - 具体実装はサブパッケージにある：mongostore/（MongoDB）、
//     cached/（Redis リードスルーキャッシュのデコレータ）
//   - テストにはこのパッケージの MemoryStore を使う
package storage

import (
	"context"
	"errors"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
)

// 永続化層の領域エラー
//
// 業務層を下位ストレージエンジンのエラー型から隔離する。
// 各ドライバ実装が下位エラーをこれらに変換する責任を持つ。
var (
	// ErrNotFound エンティティが存在しない
	// mongo.ErrNoDocuments の置き換え
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate 一意キー重複
	ErrDuplicate = errors.New("duplicate: entity already exists")
)

// AgriStore 農場データストアの操作インターフェース
//
// 参照系の未ヒットは (nil, nil)／空スライスで返し、更新系の未ヒットは
// ErrNotFound を返す。エージェントのツール呼び出しと報告パイプラインの
// 両方がこのインターフェースだけに依存する。
type AgriStore interface {
	// GetTodayTasks 指定日の担当タスクを未完了分だけ返す（圃場名・作物名を合成済み）
	GetTodayTasks(ctx context.Context, workerID, date string) ([]*model.TaskPlan, error)

	// CompleteTask 作業計画 ID のタスクを完了にする
	CompleteTask(ctx context.Context, planID string, completion model.TaskCompletion) error

	// GetFieldStatus 圃場名で圃場情報を返す（作付計画と直近の資材使用を合成済み）
	GetFieldStatus(ctx context.Context, fieldName string) (*model.Field, error)

	// GetPesticideRecommendations 作物に合う資材をローテーション順で返す
	GetPesticideRecommendations(ctx context.Context, fieldName, crop string) ([]*model.Material, error)

	// GetRecentMaterialUsage 圃場の直近 days 日の資材使用記録を新しい順で返す
	GetRecentMaterialUsage(ctx context.Context, fieldName string, days int) ([]*model.MaterialUsageRecord, error)

	// ScheduleNextTask 指定圃場に daysOffset 日後のタスクを自動生成し、作業計画 ID を返す
	ScheduleNextTask(ctx context.Context, fieldName, taskType string, daysOffset int) (string, error)

	// RecordWorkReport 作業報告（原文＋解析結果）を保存する
	RecordWorkReport(ctx context.Context, record *model.WorkRecord) error

	// GetRecentWorkReports ユーザーの作業報告を新しい順で最大 limit 件返す
	GetRecentWorkReports(ctx context.Context, userID string, limit int) ([]*model.WorkRecord, error)

	Close() error
}
