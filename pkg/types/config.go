package types

// ProjectConfig is the top-level riskreactor.yaml configuration.
type ProjectConfig struct {
	Name        string             `yaml:"name,omitempty" json:"name,omitempty"`
	MetricStore MetricStoreBackend `yaml:"metricStore" json:"metricStore"`
	Redis       *RedisConfig       `yaml:"redis,omitempty" json:"redis,omitempty"`
	Postgres    *PostgresConfig    `yaml:"postgres,omitempty" json:"postgres,omitempty"`
	DynamoDB    *DynamoDBConfig    `yaml:"dynamodb,omitempty" json:"dynamodb,omitempty"`
	Worker      WorkerConfig       `yaml:"worker,omitempty" json:"worker,omitempty"`
	Reactor     ReactorConfig      `yaml:"reactor,omitempty" json:"reactor,omitempty"`
	Server      *ServerConfig      `yaml:"server,omitempty" json:"server,omitempty"`
	Telemetry   *TelemetryConfig   `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
	Intake      *IntakeConfig      `yaml:"intake,omitempty" json:"intake,omitempty"`
	// Fixtures points at a YAML domain snapshot used by the in-memory reader.
	Fixtures string `yaml:"fixtures,omitempty" json:"fixtures,omitempty"`
}

// RedisConfig configures the shared queue store.
type RedisConfig struct {
	Addr              string `yaml:"addr" json:"addr"`
	Password          string `yaml:"password,omitempty" json:"password,omitempty"`
	PasswordSecretARN string `yaml:"passwordSecretArn,omitempty" json:"passwordSecretArn,omitempty"`
	DB                int    `yaml:"db,omitempty" json:"db,omitempty"`
	KeyPrefix         string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}

// PostgresConfig configures the metric and configuration stores.
type PostgresConfig struct {
	DSN          string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	DSNSecretARN string `yaml:"dsnSecretArn,omitempty" json:"dsnSecretArn,omitempty"`
}

// DynamoDBConfig configures the DynamoDB metric store.
type DynamoDBConfig struct {
	TableName string `yaml:"tableName" json:"tableName"`
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Create    bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	Concurrency     int    `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	FetchTimeout    string `yaml:"fetchTimeout,omitempty" json:"fetchTimeout,omitempty"`
	SoftDeadline    string `yaml:"softDeadline,omitempty" json:"softDeadline,omitempty"`
	ShutdownTimeout string `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
	// MaxRequeues bounds missing-metric requeues per job identity.
	MaxRequeues int         `yaml:"maxRequeues,omitempty" json:"maxRequeues,omitempty"`
	Retry       RetryPolicy `yaml:"retry,omitempty" json:"retry,omitempty"`
	// LeaseTimeout is how long a fetched job may stay unacknowledged before the
	// watchdog returns it to the queue.
	LeaseTimeout string `yaml:"leaseTimeout,omitempty" json:"leaseTimeout,omitempty"`
	ReapInterval string `yaml:"reapInterval,omitempty" json:"reapInterval,omitempty"`
}

// RetryPolicy configures transient-error retries within one job attempt.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"maxAttempts,omitempty" json:"maxAttempts,omitempty"`
	BackoffMillis     int     `yaml:"backoffMillis,omitempty" json:"backoffMillis,omitempty"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier,omitempty" json:"backoffMultiplier,omitempty"`
	MaxBackoffMillis  int     `yaml:"maxBackoffMillis,omitempty" json:"maxBackoffMillis,omitempty"`
}

// ReactorConfig bounds trigger fan-out.
type ReactorConfig struct {
	PlanningWindow PlanningWindow `yaml:"planningWindow,omitempty" json:"planningWindow,omitempty"`
}

// PlanningWindow is the span of days around today that dated metrics are kept fresh for.
type PlanningWindow struct {
	PastDays   int `yaml:"pastDays,omitempty" json:"pastDays,omitempty"`
	FutureDays int `yaml:"futureDays,omitempty" json:"futureDays,omitempty"`
}

// ServerConfig configures the admin HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	// APIKey, when set, is required in the X-API-Key header of every
	// request except GET /api/health.
	APIKey       string `yaml:"apiKey,omitempty" json:"-"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty" json:"insecure,omitempty"`
	ServiceName string `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// IntakeConfig enables external trigger sources.
type IntakeConfig struct {
	SQS   *SQSIntakeConfig   `yaml:"sqs,omitempty" json:"sqs,omitempty"`
	Kafka *KafkaIntakeConfig `yaml:"kafka,omitempty" json:"kafka,omitempty"`
}

// SQSIntakeConfig configures the SQS poller.
type SQSIntakeConfig struct {
	QueueURL        string `yaml:"queueUrl" json:"queueUrl"`
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	WaitTimeSeconds int32  `yaml:"waitTimeSeconds,omitempty" json:"waitTimeSeconds,omitempty"`
	MaxMessages     int32  `yaml:"maxMessages,omitempty" json:"maxMessages,omitempty"`
}

// KafkaIntakeConfig configures the Kafka consumer.
type KafkaIntakeConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers"`
	Topic   string   `yaml:"topic" json:"topic"`
	GroupID string   `yaml:"groupId" json:"groupId"`
}
