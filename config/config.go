// Package config 加载运行配置：默认值 -> YAML 文件 -> 环境变量（PERSONA_ 前缀）。
//
// 环境变量用双下划线分隔层级：PERSONA_SEARCH__TOP_K=30 对应 search.top_k。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pkg/logging"
	"github.com/rushteam/persona/recommend"
	"github.com/rushteam/persona/scheduler"
	"github.com/rushteam/persona/search"
	"github.com/rushteam/persona/service"
	"github.com/rushteam/persona/store"
	"github.com/rushteam/persona/weight"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "PERSONA_"

// Config 是完整运行配置
type Config struct {
	Log         logging.Config          `koanf:"log"`
	Embedding   service.EmbeddingConfig `koanf:"embedding"`
	Storage     StorageConfig           `koanf:"storage"`
	Weighting   weight.Weights          `koanf:"weighting"`
	Aggregation AggregationConfig       `koanf:"aggregation"`
	Ranking     recommend.Config        `koanf:"ranking"`
	Search      search.Config           `koanf:"search"`
	Ingest      IngestConfig            `koanf:"ingest"`
	Scheduler   SchedulerConfig         `koanf:"scheduler"`
	Server      ServerConfig            `koanf:"server"`
}

// 存储后端
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"

	// 画像存储：与语料同库，或独立的 KV
	ProfileBackend = "backend"
	ProfileRedis   = "redis"
	ProfileBadger  = "badger"
)

// StorageConfig 存储配置
type StorageConfig struct {
	// Backend 语料与交互记录：memory / sqlite / mongo
	Backend string `koanf:"backend"`
	// Fixtures 种子 YAML，memory / sqlite 后端启动时灌入；为空时从空语料开始
	Fixtures   string             `koanf:"fixtures"`
	SQLitePath string             `koanf:"sqlite_path"`
	Mongo      store.MongoOptions `koanf:"mongo"`

	// Profiles 画像存储：backend / memory / redis / badger
	Profiles         string             `koanf:"profiles"`
	ProfileKeyPrefix string             `koanf:"profile_key_prefix"`
	Redis            store.RedisOptions `koanf:"redis"`
	BadgerPath       string             `koanf:"badger_path"`

	// ProfileTTL 仅对 KV 画像存储生效，0 表示不过期
	ProfileTTL time.Duration `koanf:"profile_ttl"`
}

// AggregationConfig 画像聚合配置
type AggregationConfig struct {
	// Dimension 固定画像维度；0 表示取贡献向量中最常见的维度
	Dimension   int `koanf:"dimension"`
	MaxSearches int `koanf:"max_searches"`
}

// IngestConfig 文章向量化配置
type IngestConfig struct {
	Concurrency int `koanf:"concurrency"`
}

// SchedulerConfig 周期聚合配置
type SchedulerConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Interval    time.Duration `koanf:"interval"`
	Concurrency int           `koanf:"concurrency"`
	RunOnStart  bool          `koanf:"run_on_start"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MaxBodyBytes 请求体上限
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Log:       logging.DefaultConfig(),
		Embedding: service.DefaultEmbeddingConfig(),
		Storage: StorageConfig{
			Backend:          BackendMemory,
			SQLitePath:       "data/persona.db",
			Mongo:            store.MongoOptions{Database: "iTech", SearchHistoryLimit: 50},
			Profiles:         ProfileBackend,
			ProfileKeyPrefix: store.DefaultProfileKeyPrefix,
			Redis:            store.RedisOptions{Addr: "localhost:6379"},
			BadgerPath:       "data/profiles",
		},
		Weighting: weight.DefaultWeights(),
		Aggregation: AggregationConfig{
			MaxSearches: core.DefaultMaxSearches,
		},
		Ranking: recommend.DefaultConfig(),
		Search:  search.DefaultConfig(),
		Ingest:  IngestConfig{Concurrency: 4},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			Interval:    scheduler.DefaultInterval,
			Concurrency: 4,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
	}
}

// Load 按 默认值 -> path（可为空）-> 环境变量 的顺序加载并校验配置
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKey: PERSONA_SEARCH__TOP_K -> search.top_k
func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}
