package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
)

// MasterData 一括投入する農場マスタデータ
type MasterData struct {
	Fields        []*model.Field
	PlantingPlans []*model.PlantingPlan
	Materials     []*model.Material
	TaskPlans     []*model.TaskPlan
	MaterialUsage []*model.MaterialUsageRecord
}

// ImportMasterData マスタデータを一括投入する
//
// 各ドキュメントは一意キー（圃場名、作付計画ID など）で upsert するため、
// 同じファイルを繰り返し投入しても重複しない。投入件数を返す。
func (s *Store) ImportMasterData(ctx context.Context, data *MasterData) (int, error) {
	count := 0

	for _, f := range data.Fields {
		if err := s.upsert(ctx, ColFields, bson.D{{Key: "圃場名", Value: f.FieldName}}, f); err != nil {
			return count, fmt.Errorf("import field %q: %w", f.FieldName, err)
		}
		count++
	}

	for _, p := range data.PlantingPlans {
		if err := s.upsert(ctx, ColPlantingPlans, bson.D{{Key: "作付計画ID", Value: p.PlanID}}, p); err != nil {
			return count, fmt.Errorf("import planting plan %q: %w", p.PlanID, err)
		}
		count++
	}

	for _, m := range data.Materials {
		if err := s.upsert(ctx, ColMaterials, bson.D{{Key: "資材名", Value: m.Name}}, m); err != nil {
			return count, fmt.Errorf("import material %q: %w", m.Name, err)
		}
		count++
	}

	for _, t := range data.TaskPlans {
		if err := s.upsert(ctx, ColTaskPlans, bson.D{{Key: "作業計画ID", Value: t.PlanID}}, t); err != nil {
			return count, fmt.Errorf("import task plan %q: %w", t.PlanID, err)
		}
		count++
	}

	for _, u := range data.MaterialUsage {
		filter := bson.D{
			{Key: "圃場", Value: u.FieldID},
			{Key: "資材名", Value: u.MaterialName},
			{Key: "使用日", Value: u.UsedOn},
		}
		if err := s.upsert(ctx, ColMaterialUsage, filter, u); err != nil {
			return count, fmt.Errorf("import material usage %q/%q: %w", u.FieldID, u.MaterialName, err)
		}
		count++
	}

	return count, nil
}

func (s *Store) upsert(ctx context.Context, col string, filter bson.D, doc any) error {
	_, err := s.col(col).ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}
