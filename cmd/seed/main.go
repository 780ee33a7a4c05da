// Package main 農場マスタデータを MongoDB に投入するツール
//
// YAML ファイルから圃場・作付計画・資材・作業計画を読み込み、
// 一意キーで upsert する。繰り返し実行しても安全。
//
// 使い方:
//
//	go run ./cmd/seed -file seed.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
	"github.com/tomiyasu0428/agri-ai-agent/internal/storage/mongostore"
)

// seedFile YAML シードファイルの構造
type seedFile struct {
	Fields []struct {
		FieldID string  `yaml:"field_id"`
		Name    string  `yaml:"name"`
		Area    float64 `yaml:"area"`
	} `yaml:"fields"`

	PlantingPlans []struct {
		PlanID      string `yaml:"plan_id"`
		FieldID     string `yaml:"field_id"`
		Crop        string `yaml:"crop"`
		PlantedDate string `yaml:"planted_date"`
	} `yaml:"planting_plans"`

	Materials []struct {
		Name          string `yaml:"name"`
		Category      string `yaml:"category"`
		TargetCrops   string `yaml:"target_crops"`
		DilutionGuide string `yaml:"dilution_guide"`
	} `yaml:"materials"`

	TaskPlans []struct {
		PlanID        string `yaml:"plan_id"`
		TaskName      string `yaml:"task_name"`
		FieldID       string `yaml:"field_id"`
		AssignedTo    string `yaml:"assigned_to"`
		ScheduledDate string `yaml:"scheduled_date"`
	} `yaml:"task_plans"`

	MaterialUsage []struct {
		FieldID      string `yaml:"field_id"`
		MaterialName string `yaml:"material_name"`
		UsedOn       string `yaml:"used_on"`
		Dilution     string `yaml:"dilution"`
	} `yaml:"material_usage"`
}

func main() {
	var (
		file   = flag.String("file", "seed.yaml", "シードファイルのパス")
		uri    = flag.String("uri", "", "MongoDB 接続 URI（省略時は MONGODB_URI）")
		dbName = flag.String("db", "", "データベース名（省略時は MONGODB_DATABASE）")
	)
	flag.Parse()

	// .env から接続情報を補う
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}
	if *uri == "" {
		*uri = os.Getenv("MONGODB_URI")
	}
	if *dbName == "" {
		*dbName = os.Getenv("MONGODB_DATABASE")
	}
	if *dbName == "" {
		*dbName = "agri_ai_db"
	}
	if *uri == "" {
		log.Fatal("MongoDB URI が指定されていません（-uri または MONGODB_URI）")
	}

	data, err := loadSeedFile(*file)
	if err != nil {
		log.Fatalf("Failed to load seed file: %v", err)
	}

	store, err := mongostore.NewStore(*uri, *dbName)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	count, err := store.ImportMasterData(ctx, data)
	if err != nil {
		log.Fatalf("Import failed after %d documents: %v", count, err)
	}

	fmt.Printf("Imported %d documents into %s\n", count, *dbName)
}

// loadSeedFile YAML を読み込んでマスタデータに変換する
func loadSeedFile(path string) (*mongostore.MasterData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	data := &mongostore.MasterData{}
	for _, v := range f.Fields {
		if v.Name == "" {
			return nil, fmt.Errorf("field entry without name")
		}
		data.Fields = append(data.Fields, &model.Field{
			FieldID:   v.FieldID,
			FieldName: v.Name,
			Area:      v.Area,
		})
	}
	for _, v := range f.PlantingPlans {
		data.PlantingPlans = append(data.PlantingPlans, &model.PlantingPlan{
			PlanID:      v.PlanID,
			FieldID:     v.FieldID,
			Crop:        v.Crop,
			PlantedDate: v.PlantedDate,
		})
	}
	for _, v := range f.Materials {
		data.Materials = append(data.Materials, &model.Material{
			Name:          v.Name,
			Category:      v.Category,
			TargetCrops:   v.TargetCrops,
			DilutionGuide: v.DilutionGuide,
		})
	}
	for _, v := range f.TaskPlans {
		data.TaskPlans = append(data.TaskPlans, &model.TaskPlan{
			PlanID:        v.PlanID,
			TaskName:      v.TaskName,
			FieldID:       v.FieldID,
			AssignedTo:    v.AssignedTo,
			ScheduledDate: v.ScheduledDate,
			Status:        model.TaskStatusScheduled,
		})
	}
	for _, v := range f.MaterialUsage {
		data.MaterialUsage = append(data.MaterialUsage, &model.MaterialUsageRecord{
			FieldID:      v.FieldID,
			MaterialName: v.MaterialName,
			UsedOn:       v.UsedOn,
			Dilution:     v.Dilution,
		})
	}

	return data, nil
}
