package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	intlambda "github.com/dwsmith1983/riskreactor/internal/lambda"
)

func TestHandler_FailsWithoutConfig(t *testing.T) {
	t.Setenv(intlambda.EnvConfigPath, t.TempDir()+"/missing.yaml")

	err := handler(context.Background())
	assert.ErrorContains(t, err, "reading config")
}
