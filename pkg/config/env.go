package config

const (
	EnvPrefix = "ARINV"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DocumentStoreMemory = "memory"
	DocumentStoreMongo  = "mongo"
	DocumentStoreRedis  = "redis"

	BlobStoreMemory = "memory"
	BlobStoreGCS    = "gcs"
	BlobStoreS3     = "s3"
)

const (
	EnvAppEnv           = "ARINV_APP_ENV"
	EnvPort             = "ARINV_APP_PORT"
	EnvLogLevel         = "ARINV_LOG_LEVEL"
	EnvDocumentStore    = "ARINV_DOCUMENT_STORE"
	EnvBlobStore        = "ARINV_BLOB_STORE"
	EnvCollection       = "ARINV_COLLECTION"
	EnvMongoURI         = "ARINV_MONGO_URI"
	EnvMongoDatabase    = "ARINV_MONGO_DATABASE"
	EnvRedisURL         = "ARINV_REDIS_URL"
	EnvRedisAddr        = "ARINV_REDIS_ADDR"
	EnvGCPProjectID     = "ARINV_GCP_PROJECT_ID"
	EnvGCSBucket        = "ARINV_GCS_BUCKET_NAME"
	EnvEmulatorEnabled  = "ARINV_EMULATOR_ENABLED"
	EnvEmulatorHost     = "ARINV_EMULATOR_HOST"
	EnvS3Bucket         = "ARINV_S3_BUCKET"
	EnvAssetCacheDir    = "ARINV_ASSET_CACHE_DIR"
	EnvThumbnailSize    = "ARINV_THUMBNAIL_SIZE"
	EnvThumbnailScale   = "ARINV_THUMBNAIL_SCALE"
	EnvThumbnailQuality = "ARINV_THUMBNAIL_QUALITY"
	EnvStorageSub       = "ARINV_PUBSUB_STORAGE_SUBSCRIPTION"
)
