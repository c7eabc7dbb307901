// Package config handles loading and validation of riskreactor.yaml project configuration.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// FileName is the project configuration file looked up by Load.
const FileName = "riskreactor.yaml"

// Environment overrides applied after the file is parsed.
const (
	EnvRedisAddr   = "RISKREACTOR_REDIS_ADDR"
	EnvPostgresDSN = "RISKREACTOR_POSTGRES_DSN"
)

// Load reads and parses riskreactor.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads, overrides from the environment and validates one file.
func LoadFile(path string) (*types.ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Fixtures != "" && !filepath.IsAbs(cfg.Fixtures) {
		cfg.Fixtures = filepath.Join(filepath.Dir(path), cfg.Fixtures)
	}

	applyEnv(&cfg, os.Getenv)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *types.ProjectConfig, getenv func(string) string) {
	if v := getenv(EnvRedisAddr); v != "" {
		if cfg.Redis == nil {
			cfg.Redis = &types.RedisConfig{}
		}
		cfg.Redis.Addr = v
	}
	if v := getenv(EnvPostgresDSN); v != "" {
		if cfg.Postgres == nil {
			cfg.Postgres = &types.PostgresConfig{}
		}
		cfg.Postgres.DSN = v
	}
}

func validate(cfg *types.ProjectConfig) error {
	if cfg.MetricStore == "" {
		cfg.MetricStore = types.BackendMemory
	}
	switch cfg.MetricStore {
	case types.BackendMemory:
	case types.BackendPostgres:
		if cfg.Postgres == nil || (cfg.Postgres.DSN == "" && cfg.Postgres.DSNSecretARN == "") {
			return fmt.Errorf("postgres.dsn or postgres.dsnSecretArn is required when metricStore is postgres")
		}
	case types.BackendDynamoDB:
		if cfg.DynamoDB == nil || cfg.DynamoDB.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required when metricStore is dynamodb")
		}
	default:
		return fmt.Errorf("unknown metricStore %q", cfg.MetricStore)
	}

	if cfg.Redis != nil && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	w := cfg.Worker
	if w.Concurrency < 0 {
		return fmt.Errorf("worker.concurrency must not be negative")
	}
	for name, raw := range map[string]string{
		"worker.fetchTimeout":    w.FetchTimeout,
		"worker.softDeadline":    w.SoftDeadline,
		"worker.shutdownTimeout": w.ShutdownTimeout,
		"worker.leaseTimeout":    w.LeaseTimeout,
		"worker.reapInterval":    w.ReapInterval,
	} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return fmt.Errorf("%s: invalid duration %q", name, raw)
		}
	}
	if w.Retry.MaxAttempts < 0 || w.Retry.BackoffMillis < 0 || w.Retry.MaxBackoffMillis < 0 {
		return fmt.Errorf("worker.retry values must not be negative")
	}

	pw := cfg.Reactor.PlanningWindow
	if pw.PastDays < 0 || pw.FutureDays < 0 {
		return fmt.Errorf("reactor.planningWindow days must not be negative")
	}

	if in := cfg.Intake; in != nil {
		if in.SQS != nil && in.SQS.QueueURL == "" {
			return fmt.Errorf("intake.sqs.queueUrl is required")
		}
		if k := in.Kafka; k != nil {
			if len(k.Brokers) == 0 || k.Topic == "" || k.GroupID == "" {
				return fmt.Errorf("intake.kafka requires brokers, topic and groupId")
			}
		}
	}
	if cfg.Server != nil && cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// SecretGetter is the subset of the Secrets Manager client used here.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NeedsSecrets reports whether any section references a secret ARN.
func NeedsSecrets(cfg *types.ProjectConfig) bool {
	return (cfg.Postgres != nil && cfg.Postgres.DSNSecretARN != "") ||
		(cfg.Redis != nil && cfg.Redis.PasswordSecretARN != "")
}

// NewSecretsClient builds a Secrets Manager client from the default AWS
// credential chain.
func NewSecretsClient(ctx context.Context, region string) (*secretsmanager.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

// ResolveSecrets replaces secret ARN references with their values. Values
// already set explicitly win over ARNs.
func ResolveSecrets(ctx context.Context, cfg *types.ProjectConfig, sm SecretGetter) error {
	if pg := cfg.Postgres; pg != nil && pg.DSN == "" && pg.DSNSecretARN != "" {
		v, err := secretString(ctx, sm, pg.DSNSecretARN)
		if err != nil {
			return fmt.Errorf("postgres.dsnSecretArn: %w", err)
		}
		pg.DSN = v
	}
	if rc := cfg.Redis; rc != nil && rc.Password == "" && rc.PasswordSecretARN != "" {
		v, err := secretString(ctx, sm, rc.PasswordSecretARN)
		if err != nil {
			return fmt.Errorf("redis.passwordSecretArn: %w", err)
		}
		rc.Password = v
	}
	return nil
}

func secretString(ctx context.Context, sm SecretGetter, arn string) (string, error) {
	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(arn)})
	if err != nil {
		return "", err
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", errors.New("secret has no string value")
	}
	return *out.SecretString, nil
}
