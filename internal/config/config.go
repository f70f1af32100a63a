// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Storage       StorageConfig       `mapstructure:"storage"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	S3            S3Config            `mapstructure:"s3"`
	VectorStore   VectorStoreConfig   `mapstructure:"vectorstore"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	PGVector      PGVectorConfig      `mapstructure:"pgvector"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// MaxUploadMB 限制单个上传文件的大小。
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。Enabled 为 false 时 API 不做鉴权。
type JWTConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
	Issuer  string `mapstructure:"issuer"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置，OCR 通过 Tika 完成。
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// StorageConfig 选择对象存储后端：minio | s3 | memory。
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	// Prefix 是生成的对象键前缀。
	Prefix string `mapstructure:"prefix"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// S3Config 存储 AWS S3 的配置。
type S3Config struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
}

// VectorStoreConfig 选择向量库后端：elasticsearch | pgvector | memory。
type VectorStoreConfig struct {
	Backend string `mapstructure:"backend"`
	// MaxAttempts 仅针对瞬时网络错误的重试次数。
	MaxAttempts    uint          `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// PGVectorConfig 存储 Postgres + pgvector 的配置。
type PGVectorConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	// BatchSize 是单次请求发送的文本条数，受模型供应商限制。
	BatchSize         int           `mapstructure:"batch_size"`
	Concurrency       int           `mapstructure:"concurrency"`
	MaxAttempts       uint          `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// PipelineConfig 存储向量化流水线的配置。
type PipelineConfig struct {
	MaxChunkChars    int           `mapstructure:"max_chunk_chars"`
	HardMaxChars     int           `mapstructure:"hard_max_chars"`
	OCRLanguages     []string      `mapstructure:"ocr_languages"`
	SectionKeywords  []string      `mapstructure:"section_keywords"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
	VectorizeTimeout time.Duration `mapstructure:"vectorize_timeout"`
	// ExtractWorkers 限制同时进行的 CPU 密集型解析/OCR 数量。
	ExtractWorkers int `mapstructure:"extract_workers"`
}

// DefaultSectionKeywords 是默认的章节标题候选词（英文与波斯语）。
var DefaultSectionKeywords = []string{
	"Abstract", "Introduction", "Background", "Methods", "Methodology", "Results",
	"Discussion", "Conclusion", "Conclusions", "References", "Appendix",
	"چکیده", "مقدمه", "روش", "نتایج", "بحث", "نتیجه‌گیری", "منابع", "پیوست",
}

// Default 返回一份填充了默认值的配置，测试与命令行工具直接使用。
func Default() Config {
	return Config{
		Server:  ServerConfig{Port: "8080", Mode: "release", MaxUploadMB: 100},
		Log:     LogConfig{Level: "info", Format: "json"},
		JWT:     JWTConfig{Issuer: "pdf-vectorize-go"},
		Kafka:   KafkaConfig{Topic: "vectorize-tasks", GroupID: "pdf-vectorize-go-consumer"},
		Tika:    TikaConfig{ServerURL: "http://localhost:9998", Timeout: 2 * time.Minute},
		Storage: StorageConfig{Backend: "minio", Prefix: "uploads"},
		MinIO:   MinIOConfig{BucketName: "docs"},
		VectorStore: VectorStoreConfig{
			Backend:        "elasticsearch",
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
		},
		Elasticsearch: ElasticsearchConfig{IndexName: "pdf_documents"},
		PGVector:      PGVectorConfig{Table: "pdf_chunks"},
		Embedding: EmbeddingConfig{
			Provider:          "openai",
			Model:             "text-embedding-3-small",
			Dimensions:        1536,
			BatchSize:         64,
			Concurrency:       4,
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			RequestsPerSecond: 10,
		},
		Pipeline: PipelineConfig{
			MaxChunkChars:    1500,
			HardMaxChars:     8000,
			OCRLanguages:     []string{"fas", "eng"},
			SectionKeywords:  DefaultSectionKeywords,
			LockTTL:          10 * time.Minute,
			VectorizeTimeout: 5 * time.Minute,
			ExtractWorkers:   2,
		},
	}
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
// 环境变量（前缀 VECTORIZER_）覆盖文件中的同名键。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Load 读取配置并返回，不修改全局 Conf。configPath 为空时只使用默认值和环境变量。
func Load(configPath string) (Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("VECTORIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// setDefaults 把 Default() 的值注册为 viper 默认值，这样 YAML 里缺省的键也有合理取值。
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("jwt.issuer", d.JWT.Issuer)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.group_id", d.Kafka.GroupID)
	v.SetDefault("tika.server_url", d.Tika.ServerURL)
	v.SetDefault("tika.timeout", d.Tika.Timeout)
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.prefix", d.Storage.Prefix)
	v.SetDefault("minio.bucket_name", d.MinIO.BucketName)
	v.SetDefault("vectorstore.backend", d.VectorStore.Backend)
	v.SetDefault("vectorstore.max_attempts", d.VectorStore.MaxAttempts)
	v.SetDefault("vectorstore.initial_backoff", d.VectorStore.InitialBackoff)
	v.SetDefault("elasticsearch.index_name", d.Elasticsearch.IndexName)
	v.SetDefault("pgvector.table", d.PGVector.Table)
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.concurrency", d.Embedding.Concurrency)
	v.SetDefault("embedding.max_attempts", d.Embedding.MaxAttempts)
	v.SetDefault("embedding.initial_backoff", d.Embedding.InitialBackoff)
	v.SetDefault("embedding.requests_per_second", d.Embedding.RequestsPerSecond)
	v.SetDefault("pipeline.max_chunk_chars", d.Pipeline.MaxChunkChars)
	v.SetDefault("pipeline.hard_max_chars", d.Pipeline.HardMaxChars)
	v.SetDefault("pipeline.ocr_languages", d.Pipeline.OCRLanguages)
	v.SetDefault("pipeline.section_keywords", d.Pipeline.SectionKeywords)
	v.SetDefault("pipeline.lock_ttl", d.Pipeline.LockTTL)
	v.SetDefault("pipeline.vectorize_timeout", d.Pipeline.VectorizeTimeout)
	v.SetDefault("pipeline.extract_workers", d.Pipeline.ExtractWorkers)

	// 没有默认值的键需要显式绑定环境变量，Unmarshal 才能读到
	for _, key := range []string{
		"log.output_path", "jwt.enabled", "jwt.secret",
		"database.mysql.dsn", "database.redis.addr", "database.redis.password", "database.redis.db",
		"kafka.enabled", "kafka.brokers",
		"minio.endpoint", "minio.access_key_id", "minio.secret_access_key", "minio.use_ssl",
		"s3.region", "s3.bucket", "s3.access_key_id", "s3.secret_access_key", "s3.endpoint",
		"elasticsearch.addresses", "elasticsearch.username", "elasticsearch.password",
		"pgvector.dsn", "embedding.api_key", "embedding.base_url",
	} {
		_ = v.BindEnv(key)
	}
}
