// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package provider defines where the configuration document comes from.
//
// Providers load raw config bytes from a source (file, consul, etcd,
// zookeeper) and signal when the source changes.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Type identifies the config source type.
type Type string

const (
	TypeFile      Type = "file"
	TypeConsul    Type = "consul"
	TypeEtcd      Type = "etcd"
	TypeZookeeper Type = "zookeeper"
)

// ParseType converts a string to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "file", "":
		return TypeFile, nil
	case "consul":
		return TypeConsul, nil
	case "etcd":
		return TypeEtcd, nil
	case "zookeeper", "zk":
		return TypeZookeeper, nil
	default:
		return "", fmt.Errorf("unknown provider type: %s", s)
	}
}

// Provider abstracts config sources.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Type returns the provider type for logging.
	Type() Type

	// Load reads raw config bytes from the source.
	Load(ctx context.Context) ([]byte, error)

	// Watch signals on the returned channel whenever the source changes.
	// The channel is closed when ctx is cancelled. A nil channel means
	// watching is not supported.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ProviderConfig configures provider creation.
type ProviderConfig struct {
	// Type specifies the provider type.
	Type Type

	// Path is the file path, or the key / znode holding the document.
	Path string

	// Endpoints of the remote store. Empty means the store's local
	// default (see DefaultEndpoints).
	Endpoints []string

	// Token authenticates against consul.
	Token string
}

// DefaultEndpoints returns the local agent address of a remote store.
func DefaultEndpoints(t Type) []string {
	switch t {
	case TypeConsul:
		return []string{"127.0.0.1:8500"}
	case TypeEtcd:
		return []string{"127.0.0.1:2379"}
	case TypeZookeeper:
		return []string{"127.0.0.1:2181"}
	default:
		return nil
	}
}

// String describes the config source for logs, e.g.
// "etcd key /jobsum/config at 127.0.0.1:2379". The token is never included.
func (c ProviderConfig) String() string {
	switch c.Type {
	case TypeFile, "":
		return "file " + c.Path
	case TypeZookeeper:
		return fmt.Sprintf("zookeeper node %s at %s", c.Path, strings.Join(c.endpoints(), ","))
	default:
		return fmt.Sprintf("%s key %s at %s", c.Type, c.Path, strings.Join(c.endpoints(), ","))
	}
}

func (c ProviderConfig) endpoints() []string {
	if len(c.Endpoints) > 0 {
		return c.Endpoints
	}
	return DefaultEndpoints(c.Type)
}

// New creates a Provider based on ProviderConfig.
func New(opts ProviderConfig) (Provider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	opts.Endpoints = opts.endpoints()

	switch opts.Type {
	case TypeFile, "":
		return NewFileProvider(opts.Path)
	case TypeConsul:
		return NewConsulProvider(opts.Endpoints, opts.Path, opts.Token)
	case TypeEtcd:
		return NewEtcdProvider(opts.Endpoints, opts.Path)
	case TypeZookeeper:
		return NewZookeeperProvider(opts.Endpoints, opts.Path)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", opts.Type)
	}
}

// notify performs a non-blocking send; a pending signal already covers
// the change.
func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
