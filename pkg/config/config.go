package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Backend  BackendConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	GCP      GCPConfig
	GCS      GCSConfig
	Emulator EmulatorConfig
	S3       S3Config
	Assets   AssetsConfig
	PubSub   PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"ARINV_APP_ENV" default:"dev"`
	Port         string   `envconfig:"ARINV_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"ARINV_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"ARINV_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"ARINV_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// BackendConfig selects which document and blob store implementations are wired.
type BackendConfig struct {
	Documents  string `envconfig:"ARINV_DOCUMENT_STORE" default:"memory"`
	Blobs      string `envconfig:"ARINV_BLOB_STORE" default:"memory"`
	Collection string `envconfig:"ARINV_COLLECTION" default:"items"`
}

type MongoConfig struct {
	URI            string        `envconfig:"ARINV_MONGO_URI"`
	Database       string        `envconfig:"ARINV_MONGO_DATABASE" default:"inventory"`
	ConnectTimeout time.Duration `envconfig:"ARINV_MONGO_CONNECT_TIMEOUT" default:"10s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ARINV_REDIS_URL"`
	Address      string        `envconfig:"ARINV_REDIS_ADDR"`
	Password     string        `envconfig:"ARINV_REDIS_PASSWORD"`
	DB           int           `envconfig:"ARINV_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ARINV_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ARINV_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ARINV_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ARINV_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ARINV_REDIS_WRITE_TIMEOUT" default:"5s"`
	Namespace    string        `envconfig:"ARINV_REDIS_NAMESPACE" default:"arinv"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ARINV_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ARINV_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ARINV_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"ARINV_GCS_BUCKET_NAME"`
	BaseURL    string `envconfig:"ARINV_GCS_BASE_URL" default:"https://firebasestorage.googleapis.com"`
}

// EmulatorConfig points the blob store at a local storage emulator.
type EmulatorConfig struct {
	Enabled     bool   `envconfig:"ARINV_EMULATOR_ENABLED" default:"false"`
	Host        string `envconfig:"ARINV_EMULATOR_HOST" default:"127.0.0.1"`
	StoragePort int    `envconfig:"ARINV_EMULATOR_STORAGE_PORT" default:"9199"`
}

// StorageBaseURL returns the emulator endpoint for the storage REST API.
func (e EmulatorConfig) StorageBaseURL() string {
	return "http://" + net.JoinHostPort(e.Host, strconv.Itoa(e.StoragePort))
}

type S3Config struct {
	Region        string `envconfig:"ARINV_S3_REGION" default:"us-east-1"`
	Bucket        string `envconfig:"ARINV_S3_BUCKET"`
	Endpoint      string `envconfig:"ARINV_S3_ENDPOINT"`
	UsePathStyle  bool   `envconfig:"ARINV_S3_USE_PATH_STYLE" default:"false"`
	PublicBaseURL string `envconfig:"ARINV_S3_PUBLIC_BASE_URL"`
}

type AssetsConfig struct {
	CacheDir         string  `envconfig:"ARINV_ASSET_CACHE_DIR"`
	ThumbnailSize    int     `envconfig:"ARINV_THUMBNAIL_SIZE" default:"300"`
	ThumbnailScale   float64 `envconfig:"ARINV_THUMBNAIL_SCALE" default:"2"`
	ThumbnailQuality float64 `envconfig:"ARINV_THUMBNAIL_QUALITY" default:"0.5"`
	MaxUploadMB      int     `envconfig:"ARINV_MAX_UPLOAD_MB" default:"200"`
}

type PubSubConfig struct {
	StorageSubscription string `envconfig:"ARINV_PUBSUB_STORAGE_SUBSCRIPTION"`
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Backend.Documents) {
	case DocumentStoreMemory:
	case DocumentStoreMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvMongoURI, EnvDocumentStore, DocumentStoreMongo)
		}
	case DocumentStoreRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return fmt.Errorf("either %s or %s is required when %s=%s", EnvRedisURL, EnvRedisAddr, EnvDocumentStore, DocumentStoreRedis)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvDocumentStore, c.Backend.Documents)
	}

	switch strings.ToLower(c.Backend.Blobs) {
	case BlobStoreMemory:
	case BlobStoreGCS:
		if c.GCS.BucketName == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvGCSBucket, EnvBlobStore, BlobStoreGCS)
		}
	case BlobStoreS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvS3Bucket, EnvBlobStore, BlobStoreS3)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvBlobStore, c.Backend.Blobs)
	}

	if c.Assets.ThumbnailSize <= 0 {
		return fmt.Errorf("%s must be positive", EnvThumbnailSize)
	}
	if c.Assets.ThumbnailScale <= 0 {
		return fmt.Errorf("%s must be positive", EnvThumbnailScale)
	}
	if c.Assets.ThumbnailQuality <= 0 || c.Assets.ThumbnailQuality > 1 {
		return fmt.Errorf("%s must be within (0, 1]", EnvThumbnailQuality)
	}
	return nil
}

// MaxUploadBytes converts the configured upload ceiling into bytes.
func (a AssetsConfig) MaxUploadBytes() int64 {
	if a.MaxUploadMB <= 0 {
		return 0
	}
	return int64(a.MaxUploadMB) * 1024 * 1024
}
