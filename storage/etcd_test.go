package storage

import (
	"os"
	"strings"
	"testing"
)

// Requires a running etcd cluster; set FLOWMESH_TEST_ETCD_ENDPOINTS to
// enable, e.g. FLOWMESH_TEST_ETCD_ENDPOINTS=localhost:2379.
func TestEtcdProviderContract(t *testing.T) {
	endpoints := os.Getenv("FLOWMESH_TEST_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("FLOWMESH_TEST_ETCD_ENDPOINTS not set")
	}

	p, err := NewEtcdProvider(strings.Split(endpoints, ","), func(o *EtcdOptions) {
		o.Namespace = "flowmesh-test"
	})
	if err != nil {
		t.Fatalf("connect to etcd: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	exerciseProvider(t, p)
}
