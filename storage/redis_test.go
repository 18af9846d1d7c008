package storage

import (
	"os"
	"testing"
)

// Requires a running Redis server; set FLOWMESH_TEST_REDIS_ADDR to enable,
// e.g. FLOWMESH_TEST_REDIS_ADDR=localhost:6379.
func TestRedisProviderContract(t *testing.T) {
	addr := os.Getenv("FLOWMESH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FLOWMESH_TEST_REDIS_ADDR not set")
	}

	p, err := NewRedisProvider(addr)
	if err != nil {
		t.Fatalf("connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	exerciseProvider(t, p)
}
