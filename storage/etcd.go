package storage

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/hupe1980/flowmesh/core"
)

// EtcdOptions holds configuration overrides passed to NewEtcdProvider().
type EtcdOptions struct {
	// DialTimeout bounds connection establishment and the initial health
	// check.
	DialTimeout time.Duration
	// Namespace is prepended to every key, isolating multiple deployments
	// sharing one cluster.
	Namespace string
}

// EtcdProvider is a StorageProvider backed by an etcd cluster, for setups
// where flow and agent state must be consistent across multiple processes.
type EtcdProvider struct {
	client    *clientv3.Client
	namespace string
}

var _ core.StorageProvider = (*EtcdProvider)(nil)

// NewEtcdProvider connects to the cluster and verifies the first endpoint
// responds before returning.
func NewEtcdProvider(endpoints []string, optFns ...func(o *EtcdOptions)) (*EtcdProvider, error) {
	opts := EtcdOptions{
		DialTimeout: 5 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to etcd: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if _, err := client.Status(ctx, endpoints[0]); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("etcd health check: %w", err)
	}

	return &EtcdProvider{client: client, namespace: opts.Namespace}, nil
}

func (p *EtcdProvider) key(key string) string {
	if p.namespace == "" {
		return key
	}
	return p.namespace + "/" + key
}

// Get returns the value stored under key.
func (p *EtcdProvider) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := p.client.Get(ctx, p.key(key))
	if err != nil {
		return nil, fmt.Errorf("etcd get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, core.ErrKeyNotFound
	}
	return resp.Kvs[0].Value, nil
}

// Set stores value under key, overwriting any previous value.
func (p *EtcdProvider) Set(ctx context.Context, key string, value []byte) error {
	if _, err := p.client.Put(ctx, p.key(key), string(value)); err != nil {
		return fmt.Errorf("etcd put %s: %w", key, err)
	}
	return nil
}

// Delete removes the key. Deleting an unknown key is not an error.
func (p *EtcdProvider) Delete(ctx context.Context, key string) error {
	if _, err := p.client.Delete(ctx, p.key(key)); err != nil {
		return fmt.Errorf("etcd delete %s: %w", key, err)
	}
	return nil
}

// List returns the keys beginning with prefix, with the provider namespace
// stripped.
func (p *EtcdProvider) List(ctx context.Context, prefix string) ([]string, error) {
	resp, err := p.client.Get(ctx, p.key(prefix), clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("etcd list %s: %w", prefix, err)
	}

	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		key := string(kv.Key)
		if p.namespace != "" {
			key = key[len(p.namespace)+1:]
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Close releases the underlying client connection.
func (p *EtcdProvider) Close() error {
	return p.client.Close()
}
