package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
)

// ============================================================================
// 資材データ
// ============================================================================

// pesticideCategories 農薬推奨の対象となる資材分類
var pesticideCategories = bson.A{"農薬", "防除剤", "殺虫剤", "殺菌剤"}

// GetPesticideRecommendations 作物に合う資材をローテーション順で返す
//
// 対象作物の部分一致か防除系分類で絞り込み、直近 90 日の使用回数を
// JOIN で数えて、使用の少ないものから最大 10 件返す。
// 連用を避けるのが目的なので昇順で並べる。
func (s *Store) GetPesticideRecommendations(ctx context.Context, fieldName, crop string) ([]*model.Material, error) {
	since := s.now().AddDate(0, 0, -90).Format("2006-01-02")

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "対象作物", Value: bson.D{
					{Key: "$regex", Value: crop},
					{Key: "$options", Value: "i"},
				}}},
				bson.D{{Key: "資材分類", Value: bson.D{{Key: "$in", Value: pesticideCategories}}}},
			}},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: ColMaterialUsage},
			{Key: "let", Value: bson.D{{Key: "material_name", Value: "$資材名"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{
					{Key: "$expr", Value: bson.D{{Key: "$eq", Value: bson.A{"$資材名", "$$material_name"}}}},
					{Key: "使用日", Value: bson.D{{Key: "$gte", Value: since}}},
				}}},
			}},
			{Key: "as", Value: "usage_history"},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "recent_usage_count", Value: bson.D{{Key: "$size", Value: "$usage_history"}}},
			{Key: "last_used", Value: bson.D{{Key: "$max", Value: "$usage_history.使用日"}}},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "recent_usage_count", Value: 1},
			{Key: "資材名", Value: 1},
		}}},
		{{Key: "$limit", Value: 10}},
	}

	return aggregate[model.Material](ctx, s.col(ColMaterials), pipeline)
}
