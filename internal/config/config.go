// Package config 統一的な設定管理
//
// 設定の読み込み戦略：
//  1. .env から機密情報（APIキー、接続URI）と APP_ENV を読み込む
//  2. APP_ENV に対応する configs/{env}.yaml を読み込む
//  3. 環境変数で YAML 設定を上書きできる
//
// 使い方：
//   - 開発環境: APP_ENV=dev (デフォルト)
//   - テスト環境: APP_ENV=test
//   - 本番環境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 環境の種類
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 設定ファイルの構造
type YAMLConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Mongo   MongoConfig   `yaml:"mongo"`
	Redis   RedisConfig   `yaml:"redis"`
	Agent   AgentConfig   `yaml:"agent"`
	Context ContextConfig `yaml:"context"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type MongoConfig struct {
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	DB   int    `yaml:"db"`
	TTL  string `yaml:"ttl"`
}

// AgentConfig エージェントプールの設定
type AgentConfig struct {
	Model          string `yaml:"model"`
	MaxAgents      int    `yaml:"max_agents"`
	TTLMinutes     int    `yaml:"ttl_minutes"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ContextConfig 会話コンテキストの設定
type ContextConfig struct {
	MaxHistory int `yaml:"max_history"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config アプリケーション設定（最終的に使用する設定）
type Config struct {
	Env                    Environment
	MongoURI               string
	MongoDatabase          string
	RedisAddr              string
	RedisDB                int
	CacheTTL               time.Duration
	GoogleAPIKey           string
	LineChannelAccessToken string
	LineChannelSecret      string
	Port                   string
	Agent                  AgentConfig
	Context                ContextConfig
	Log                    LogConfig
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 設定を読み込む
// 1. .env を読み込む（機密情報 + APP_ENV）
// 2. APP_ENV に応じて configs/{env}.yaml を読み込む
// 3. 最終的な設定を構築する
func Load() (*Config, error) {
	// .env を読み込む
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// 環境を解析する
	env := parseEnv(getEnv("APP_ENV", "dev"))

	// YAML 設定を読み込む
	yamlCfg := loadYAMLConfig(env)

	// 環境変数から機密情報を取得する
	cfg := &Config{
		Env:                    env,
		MongoURI:               getEnv("MONGODB_URI", ""),
		MongoDatabase:          getEnv("MONGODB_DATABASE", yamlCfg.Mongo.Database),
		RedisAddr:              getEnv("REDIS_ADDR", fmt.Sprintf("%s:%d", yamlCfg.Redis.Host, yamlCfg.Redis.Port)),
		RedisDB:                yamlCfg.Redis.DB,
		CacheTTL:               parseTTL(yamlCfg.Redis.TTL),
		GoogleAPIKey:           getEnv("GOOGLE_API_KEY", ""),
		LineChannelAccessToken: getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineChannelSecret:      getEnv("LINE_CHANNEL_SECRET", ""),
		Port:                   getEnv("PORT", yamlCfg.Server.Port),
		Agent:                  yamlCfg.Agent,
		Context:                yamlCfg.Context,
		Log:                    yamlCfg.Log,
	}

	// 環境変数でエージェントプール設定を上書きする
	if v := getEnvInt("MAX_AGENTS", 0); v > 0 {
		cfg.Agent.MaxAgents = v
	}
	if v := getEnvInt("AGENT_TTL_MINUTES", 0); v > 0 {
		cfg.Agent.TTLMinutes = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		cfg.Log.Level = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAMLConfig YAML 設定ファイルを読み込む
// 読み込み順序：デフォルト値 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	// 1. デフォルト値を初期化する
	cfg := defaultYAMLConfig(env)

	// 2. common.yaml を読み込む（共通設定）
	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	// 3. {env}.yaml を読み込む（環境固有の設定で共通設定を上書き）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

// defaultYAMLConfig 環境ごとのデフォルト値
// エージェントプールのサイズと寿命は環境によって変わる：
// 開発は小さく長め、本番は大きく短め、テストは最小限。
func defaultYAMLConfig(env Environment) *YAMLConfig {
	cfg := &YAMLConfig{
		Server:  ServerConfig{Port: "8080"},
		Mongo:   MongoConfig{Database: "agri_ai_db"},
		Redis:   RedisConfig{Host: "localhost", Port: 6379, DB: 0, TTL: "5m"},
		Agent:   AgentConfig{Model: "gemini-2.0-flash", MaxAgents: 10, TTLMinutes: 60, TimeoutSeconds: 60},
		Context: ContextConfig{MaxHistory: 50},
		Log:     LogConfig{Level: "debug", Format: "text"},
	}
	switch env {
	case EnvProduction:
		cfg.Agent = AgentConfig{Model: "gemini-2.0-flash", MaxAgents: 100, TTLMinutes: 30, TimeoutSeconds: 30}
		cfg.Log = LogConfig{Level: "info", Format: "json"}
	case EnvTest:
		cfg.Agent = AgentConfig{Model: "gemini-2.0-flash", MaxAgents: 5, TTLMinutes: 5, TimeoutSeconds: 10}
	}
	return cfg
}

// validate 必須項目を検証する
func (c *Config) validate() error {
	var errs []string
	if c.MongoURI == "" || strings.HasPrefix(c.MongoURI, "your_") {
		errs = append(errs, "MONGODB_URI が設定されていません")
	}
	if c.GoogleAPIKey == "" || strings.HasPrefix(c.GoogleAPIKey, "your_") {
		errs = append(errs, "GOOGLE_API_KEY が設定されていません")
	}
	// LINE Bot はどちらか一方だけの設定を許さない
	if (c.LineChannelAccessToken == "") != (c.LineChannelSecret == "") {
		errs = append(errs, "LINE_CHANNEL_ACCESS_TOKEN と LINE_CHANNEL_SECRET は両方設定してください")
	}
	if len(errs) > 0 {
		return fmt.Errorf("設定エラー: %s", strings.Join(errs, ", "))
	}
	return nil
}

// AgentTTL エージェントの有効期限
func (c *Config) AgentTTL() time.Duration {
	return time.Duration(c.Agent.TTLMinutes) * time.Minute
}

// RequestTimeout リクエスト処理のタイムアウト
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Agent.TimeoutSeconds) * time.Second
}

func parseTTL(s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return 5 * time.Minute
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test", "testing":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// IsTest テスト環境かどうか
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 設定の概要を返す（認証情報は隠す）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Mongo: %s/%s, Redis: %s, Port: %s, Agents: %d}",
		c.Env, maskPassword(c.MongoURI), c.MongoDatabase, c.RedisAddr, c.Port, c.Agent.MaxAgents)
}

// maskPassword 接続 URI 内のパスワードを隠す
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:/]+:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}
