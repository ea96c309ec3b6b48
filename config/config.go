package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"dedupe-api"`
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

	// Tracing
	TracingEnabled bool   `env:"TRACING_ENABLED" env-default:"false"`
	OTLPEndpoint   string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol   string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure   bool   `env:"OTLP_INSECURE" env-default:"true"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"dedupe"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Kafka Consumer (contact change intake)
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaInputTopic      string   `env:"KAFKA_INPUT_TOPIC" env-default:"contact-changes"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"dedupe-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"false"`

	// Kafka Producer settings (lifecycle events)
	KafkaOutputTopic  string `env:"KAFKA_OUTPUT_TOPIC" env-default:"contact-events"`
	KafkaBatchSize    int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Matching weights. Must sum to 1.0.
	MatchWeightEmail   float64 `env:"MATCH_WEIGHT_EMAIL" env-default:"0.35"`
	MatchWeightPhone   float64 `env:"MATCH_WEIGHT_PHONE" env-default:"0.25"`
	MatchWeightName    float64 `env:"MATCH_WEIGHT_NAME" env-default:"0.20"`
	MatchWeightCompany float64 `env:"MATCH_WEIGHT_COMPANY" env-default:"0.10"`
	MatchWeightAddress float64 `env:"MATCH_WEIGHT_ADDRESS" env-default:"0.10"`

	// Matching thresholds and safety nets
	AutoMergeThreshold   float64 `env:"AUTO_MERGE_THRESHOLD" env-default:"0.92"`
	ReviewThreshold      float64 `env:"REVIEW_THRESHOLD" env-default:"0.75"`
	MetaphoneSafetyNet   bool    `env:"METAPHONE_SAFETY_NET" env-default:"false"`
	AutoMergeEnabled     bool    `env:"AUTO_MERGE_ENABLED" env-default:"false"`
	AutoMergeMaxPerRun   int     `env:"AUTO_MERGE_MAX_PER_RUN" env-default:"50"`
	MergeConcatNotes     bool    `env:"MERGE_CONCAT_NOTES" env-default:"true"`
	MergeRetentionPolicy string  `env:"MERGE_RETENTION_POLICY" env-default:"keep_history"`

	// A merge transaction that outlives this deadline is rolled back rather
	// than holding its row locks indefinitely.
	MergeTxTimeout time.Duration `env:"MERGE_TX_TIMEOUT" env-default:"30s"`

	// Batch processing
	BatchChunkSize   int `env:"BATCH_CHUNK_SIZE" env-default:"500"`
	BatchDefaultDays int `env:"BATCH_DEFAULT_DAYS" env-default:"30"`
	BatchMaxContacts int `env:"BATCH_MAX_CONTACTS" env-default:"0"` // 0 = unbounded
}
