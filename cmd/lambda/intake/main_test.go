package main

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"

	intlambda "github.com/dwsmith1983/riskreactor/internal/lambda"
)

func TestHandler_FailsWithoutConfig(t *testing.T) {
	t.Setenv(intlambda.EnvConfigPath, t.TempDir()+"/missing.yaml")

	_, err := handler(context.Background(), events.SQSEvent{})
	assert.ErrorContains(t, err, "reading config")
}
