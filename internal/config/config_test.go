package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	t.Setenv(EnvRedisAddr, "")
	t.Setenv(EnvPostgresDSN, "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `name: acme
metricStore: postgres
postgres:
  dsn: postgres://localhost/risk
redis:
  addr: localhost:6379
  keyPrefix: "rr:"
worker:
  concurrency: 8
  softDeadline: 45s
  retry:
    maxAttempts: 4
reactor:
  planningWindow:
    pastDays: 1
    futureDays: 14
server:
  addr: ":3000"
fixtures: fixtures.yaml
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, types.BackendPostgres, cfg.MetricStore)
	assert.Equal(t, "postgres://localhost/risk", cfg.Postgres.DSN)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "rr:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, "45s", cfg.Worker.SoftDeadline)
	assert.Equal(t, 4, cfg.Worker.Retry.MaxAttempts)
	assert.Equal(t, 14, cfg.Reactor.PlanningWindow.FutureDays)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, filepath.Join(dir, "fixtures.yaml"), cfg.Fixtures)
}

func TestLoad_DefaultsToMemory(t *testing.T) {
	cfg, err := Load(writeConfig(t, "name: local\n"))
	require.NoError(t, err)
	assert.Equal(t, types.BackendMemory, cfg.MetricStore)
	assert.Nil(t, cfg.Redis)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := writeConfig(t, "metricStore: postgres\npostgres:\n  dsn: postgres://file\n")
	t.Setenv(EnvRedisAddr, "redis.internal:6379")
	t.Setenv(EnvPostgresDSN, "postgres://env")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "postgres://env", cfg.Postgres.DSN)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown store", "metricStore: sqlite\n", "unknown metricStore"},
		{"postgres without dsn", "metricStore: postgres\n", "postgres.dsn"},
		{"dynamodb without table", "metricStore: dynamodb\ndynamodb:\n  region: us-east-1\n", "dynamodb.tableName"},
		{"redis without addr", "redis:\n  db: 2\n", "redis.addr"},
		{"bad duration", "worker:\n  fetchTimeout: soon\n", "worker.fetchTimeout"},
		{"negative window", "reactor:\n  planningWindow:\n    pastDays: -1\n", "planningWindow"},
		{"negative retry", "worker:\n  retry:\n    maxAttempts: -1\n", "worker.retry"},
		{"sqs without url", "intake:\n  sqs:\n    region: us-east-1\n", "intake.sqs.queueUrl"},
		{"kafka without topic", "intake:\n  kafka:\n    brokers: [localhost:9092]\n    groupId: g\n", "intake.kafka"},
		{"server without addr", "server: {}\n", "server.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidation_SecretArnSatisfiesPostgres(t *testing.T) {
	cfg, err := Load(writeConfig(t, "metricStore: postgres\npostgres:\n  dsnSecretArn: arn:aws:secretsmanager:us-east-1:1:secret:dsn\n"))
	require.NoError(t, err)
	assert.True(t, NeedsSecrets(cfg))
}

type fakeSecrets map[string]string

func (f fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	v, ok := f[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestResolveSecrets(t *testing.T) {
	cfg := &types.ProjectConfig{
		Postgres: &types.PostgresConfig{DSNSecretARN: "arn:dsn"},
		Redis:    &types.RedisConfig{Addr: "r:6379", Password: "explicit", PasswordSecretARN: "arn:pw"},
	}
	sm := fakeSecrets{"arn:dsn": "postgres://secret", "arn:pw": "from-secret"}

	require.NoError(t, ResolveSecrets(context.Background(), cfg, sm))
	assert.Equal(t, "postgres://secret", cfg.Postgres.DSN)
	assert.Equal(t, "explicit", cfg.Redis.Password, "explicit value wins")
}

func TestResolveSecrets_Errors(t *testing.T) {
	cfg := &types.ProjectConfig{Redis: &types.RedisConfig{Addr: "r:6379", PasswordSecretARN: "arn:missing"}}
	err := ResolveSecrets(context.Background(), cfg, fakeSecrets{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.passwordSecretArn")

	cfg = &types.ProjectConfig{Postgres: &types.PostgresConfig{DSNSecretARN: "arn:empty"}}
	err = ResolveSecrets(context.Background(), cfg, fakeSecrets{"arn:empty": ""})
	assert.ErrorContains(t, err, "no string value")
}
