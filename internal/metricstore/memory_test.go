package metricstore_test

import (
	"testing"

	"github.com/dwsmith1983/riskreactor/internal/metricstore"
	"github.com/dwsmith1983/riskreactor/internal/metricstore/storetest"
)

func TestMemoryConformance(t *testing.T) {
	storetest.RunAll(t, metricstore.NewMemory(nil))
}

func TestBreakerConformance(t *testing.T) {
	storetest.RunAll(t, metricstore.NewBreaker(metricstore.NewMemory(nil), metricstore.BreakerSettings{}, nil))
}
