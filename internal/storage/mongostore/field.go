package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
)

// ============================================================================
// 圃場データ
// ============================================================================

// GetFieldStatus 圃場名で圃場情報を返す
//
// 作付計画と直近 30 日の資材使用記録（最新 5 件）を 1 本の
// 集約パイプラインで合成する。未ヒットは (nil, nil)。
func (s *Store) GetFieldStatus(ctx context.Context, fieldName string) (*model.Field, error) {
	since := s.now().AddDate(0, 0, -30).Format("2006-01-02")

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "圃場名", Value: fieldName}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: ColPlantingPlans},
			{Key: "localField", Value: "圃場ID"},
			{Key: "foreignField", Value: "圃場"},
			{Key: "as", Value: "planting_plans"},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: ColMaterialUsage},
			{Key: "let", Value: bson.D{{Key: "field_id", Value: "$圃場ID"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{
					{Key: "$expr", Value: bson.D{{Key: "$eq", Value: bson.A{"$圃場", "$$field_id"}}}},
					{Key: "使用日", Value: bson.D{{Key: "$gte", Value: since}}},
				}}},
				bson.D{{Key: "$sort", Value: bson.D{{Key: "使用日", Value: -1}}}},
				bson.D{{Key: "$limit", Value: 5}},
			}},
			{Key: "as", Value: "recent_material_usage"},
		}}},
	}

	results, err := aggregate[model.Field](ctx, s.col(ColFields), pipeline)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// GetRecentMaterialUsage 圃場の直近 days 日の資材使用記録を新しい順で返す
//
// 資材データを JOIN して資材分類を添える。
func (s *Store) GetRecentMaterialUsage(ctx context.Context, fieldName string, days int) ([]*model.MaterialUsageRecord, error) {
	field, err := findOne[model.Field](ctx, s.col(ColFields),
		bson.D{{Key: "圃場名", Value: fieldName}})
	if err != nil {
		return nil, err
	}
	if field == nil {
		return []*model.MaterialUsageRecord{}, nil
	}

	since := s.now().AddDate(0, 0, -days).Format("2006-01-02")
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "圃場", Value: field.FieldID},
			{Key: "使用日", Value: bson.D{{Key: "$gte", Value: since}}},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: ColMaterials},
			{Key: "localField", Value: "資材名"},
			{Key: "foreignField", Value: "資材名"},
			{Key: "as", Value: "material_info"},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "資材分類", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$material_info.資材分類", 0}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "使用日", Value: -1}}}},
	}

	return aggregate[model.MaterialUsageRecord](ctx, s.col(ColMaterialUsage), pipeline)
}
