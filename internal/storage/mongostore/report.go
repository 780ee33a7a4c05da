package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
)

// ============================================================================
// 作業記録
// ============================================================================

// RecordWorkReport 作業報告（原文＋解析結果）を保存する
func (s *Store) RecordWorkReport(ctx context.Context, record *model.WorkRecord) error {
	rec := *record
	if rec.ID == "" {
		rec.ID = bson.NewObjectID().Hex()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.now()
	}
	return insertOne(ctx, s.col(ColWorkRecords), &rec)
}

// GetRecentWorkReports ユーザーの作業報告を新しい順で最大 limit 件返す
func (s *Store) GetRecentWorkReports(ctx context.Context, userID string, limit int) ([]*model.WorkRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "記録時刻", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findMany[model.WorkRecord](ctx, s.col(ColWorkRecords),
		bson.D{{Key: "ユーザーID", Value: userID}}, opts)
}
