package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"sedum-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	BaseURL                       string   `env:"BASE_URL" env-default:"http://localhost:3004"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"sedum"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseReconnectRetryCount   int           `env:"DB_RECONNECT_RETRY_COUNT" env-default:"3"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
	// Progress TTL
	ProgressTTL time.Duration `env:"PROGRESS_TTL" env-default:"24h"`

	// Job queue (Redis Streams)
	QueueStream        string        `env:"QUEUE_STREAM" env-default:"sedum:jobs"`
	QueueConsumerGroup string        `env:"QUEUE_CONSUMER_GROUP" env-default:"sedum-workers"`
	QueueBatchSize     int           `env:"QUEUE_BATCH_SIZE" env-default:"10"`
	QueueBlockTimeout  time.Duration `env:"QUEUE_BLOCK_TIMEOUT" env-default:"5s"`
	QueueMaxRetries    int           `env:"QUEUE_MAX_RETRIES" env-default:"3"`
	QueueClaimInterval time.Duration `env:"QUEUE_CLAIM_INTERVAL" env-default:"30s"`
	QueueClaimMinIdle  time.Duration `env:"QUEUE_CLAIM_MIN_IDLE" env-default:"60s"`
	QueueWorkerCount   int           `env:"QUEUE_WORKER_COUNT" env-default:"4"`

	// Kafka Producer settings
	KafkaBrokers       []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaBuildingTopic string   `env:"KAFKA_BUILDING_TOPIC" env-default:"building-events"`
	KafkaAuditTopic    string   `env:"KAFKA_AUDIT_TOPIC" env-default:"audit-events"`
	KafkaBatchSize     int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout  int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks  int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression   string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Matching
	MatchMinThreshold  float64 `env:"MATCH_MIN_THRESHOLD" env-default:"0.4"`
	MatchMedThreshold  float64 `env:"MATCH_MED_THRESHOLD" env-default:"0.7"`
	MatchChunkSize     int     `env:"MATCH_CHUNK_SIZE" env-default:"100"`
	MatchWorkerCount   int     `env:"MATCH_WORKER_COUNT" env-default:"10"`
	PromoteLockTTL     time.Duration `env:"PROMOTE_LOCK_TTL" env-default:"30s"`
	PromoteLockTimeout time.Duration `env:"PROMOTE_LOCK_TIMEOUT" env-default:"10s"`

	// Import pipeline
	ImportChunkSize          int           `env:"IMPORT_CHUNK_SIZE" env-default:"100"`
	DeleteChunkSize          int           `env:"DELETE_CHUNK_SIZE" env-default:"100"`
	CanonicalDeleteChunkSize int           `env:"CANONICAL_DELETE_CHUNK_SIZE" env-default:"300"`
	MapRequeueCountdown      time.Duration `env:"MAP_REQUEUE_COUNTDOWN" env-default:"60s"`
	MapRequeueExpiry         time.Duration `env:"MAP_REQUEUE_EXPIRY" env-default:"120s"`
	MatchRequeueCountdown    time.Duration `env:"MATCH_REQUEUE_COUNTDOWN" env-default:"10s"`
	MatchRequeueExpiry       time.Duration `env:"MATCH_REQUEUE_EXPIRY" env-default:"20s"`
}
