// Package mongostore MongoDB による storage.AgriStore の実装
//
// mongo-go-driver v2 を使い、model 構造体の bson タグで直列化する。
// コレクション名は既存データベース（日本語名）に合わせ、
// インデックスは ensureIndexes で一括管理する。
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tomiyasu0428/agri-ai-agent/internal/storage"
)

// コレクション名（既存スキーマの日本語名をそのまま使う）
const (
	ColTaskPlans     = "作業計画"
	ColFields        = "圃場データ"
	ColPlantingPlans = "作付計画"
	ColMaterials     = "資材データ"
	ColMaterialUsage = "資材使用記録"
	ColCrops         = "作物データ"
	ColWorkRecords   = "作業記録"
)

// Store storage.AgriStore を実装する MongoDB ドライバ
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	now func() time.Time
}

var _ storage.AgriStore = (*Store)(nil)

// NewStore MongoDB ストアを作る
//
// uri: 接続 URI（例 "mongodb://localhost:27017"）
// dbName: データベース名（例 "agri_ai_db"）
func NewStore(uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	s := &Store{
		client: client,
		db:     client.Database(dbName),
		now:    time.Now,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("mongostore: ensure indexes failed: %w", err)
	}

	return s, nil
}

// Close MongoDB 接続を閉じる
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// col 指定コレクションを返す
func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// ensureIndexes 必要なインデックスを一括作成する
func (s *Store) ensureIndexes(ctx context.Context) error {
	type idx struct {
		col    string
		keys   bson.D
		unique bool
	}

	indexes := []idx{
		// 作業計画
		{ColTaskPlans, bson.D{{Key: "作業計画ID", Value: 1}}, true},
		{ColTaskPlans, bson.D{{Key: "担当者", Value: 1}, {Key: "予定日", Value: 1}}, false},
		{ColTaskPlans, bson.D{{Key: "ステータス", Value: 1}}, false},

		// 圃場データ
		{ColFields, bson.D{{Key: "圃場名", Value: 1}}, true},
		{ColFields, bson.D{{Key: "圃場ID", Value: 1}}, true},

		// 作付計画
		{ColPlantingPlans, bson.D{{Key: "作付計画ID", Value: 1}}, true},
		{ColPlantingPlans, bson.D{{Key: "圃場", Value: 1}}, false},

		// 資材データ
		{ColMaterials, bson.D{{Key: "資材名", Value: 1}}, true},
		{ColMaterials, bson.D{{Key: "資材分類", Value: 1}}, false},

		// 資材使用記録
		{ColMaterialUsage, bson.D{{Key: "圃場", Value: 1}, {Key: "使用日", Value: -1}}, false},
		{ColMaterialUsage, bson.D{{Key: "資材名", Value: 1}, {Key: "使用日", Value: -1}}, false},

		// 作業記録
		{ColWorkRecords, bson.D{{Key: "ユーザーID", Value: 1}, {Key: "記録時刻", Value: -1}}, false},
	}

	for _, i := range indexes {
		m := mongo.IndexModel{Keys: i.keys}
		if i.unique {
			m.Options = options.Index().SetUnique(true)
		}
		if _, err := s.col(i.col).Indexes().CreateOne(ctx, m); err != nil {
			return fmt.Errorf("create index on %s: %w", i.col, err)
		}
	}

	return nil
}
