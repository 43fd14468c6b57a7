// Package discovery registers the storefront API in etcd so sibling
// services (courier apps, back office) can find it.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/example/deliverydash/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const leaseTTLSeconds = 30

type Registry struct {
	client *clientv3.Client
	config *config.EtcdConfig
}

func NewRegistry(cfg *config.EtcdConfig) (*Registry, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: time.Duration(cfg.DialTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &Registry{
		client: cli,
		config: cfg,
	}, nil
}

func (r *Registry) key(name, host string, port int) string {
	return fmt.Sprintf("%s%s/%s:%d", r.config.Prefix, name, host, port)
}

// Register announces the service under a leased key that expires if
// the process stops renewing it.
func (r *Registry) Register(ctx context.Context, name, host string, port int) error {
	lease, err := r.client.Grant(ctx, leaseTTLSeconds)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	value := fmt.Sprintf("%s:%d", host, port)
	_, err = r.client.Put(ctx, r.key(name, host, port), value, clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	ch, kaerr := r.client.KeepAlive(ctx, lease.ID)
	if kaerr != nil {
		return fmt.Errorf("failed to keep alive: %w", kaerr)
	}

	go func() {
		for range ch {
		}
	}()

	return nil
}

func (r *Registry) Deregister(ctx context.Context, name, host string, port int) error {
	if _, err := r.client.Delete(ctx, r.key(name, host, port)); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	return nil
}

func (r *Registry) Close() error {
	return r.client.Close()
}
