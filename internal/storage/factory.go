// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crawlcore/pkg/contract"
)

// Options holds the knobs needed to build each supported Dataset/KVS
// adapter. Only the fields relevant to the chosen adapter are read.
type Options struct {
	// FilePath selects the "file" Dataset adapter.
	FilePath string

	// RedisAddr, when set, builds a real go-redis client; otherwise the
	// "redis" adapter falls back to a dependency-free logging client, so
	// the demo can exercise the code path without a live server.
	RedisAddr string
	RedisTTL  time.Duration

	// KafkaTopic, when set, is used for the "kafka" adapter; the demo
	// always uses a logging producer, since no concrete broker client is
	// imported by this package.
	KafkaTopic string

	// PostgresDB and PostgresDatasetName configure the "postgres"
	// adapter. A nil PostgresDB is an error: unlike the logging
	// fallbacks for Redis/Kafka, there is no dependency-free stand-in
	// for a *sql.DB.
	PostgresDB          *sql.DB
	PostgresDatasetName string
}

// BuildDataset constructs a contract.Dataset for the named adapter:
// "", "memory" (default), "file", "redis" is not a Dataset backend (Redis
// here only implements KeyValueStore — see BuildKeyValueStore), "postgres",
// or "kafka".
func BuildDataset(adapter string, opts Options) (contract.Dataset, error) {
	switch adapter {
	case "", "memory":
		return NewMemoryDataset(), nil
	case "file":
		if opts.FilePath == "" {
			return nil, errors.New("storage: file adapter requires Options.FilePath")
		}
		return NewFileDataset(opts.FilePath)
	case "postgres":
		if opts.PostgresDB == nil {
			return nil, errors.New("storage: postgres adapter requires Options.PostgresDB")
		}
		name := opts.PostgresDatasetName
		if name == "" {
			name = "default"
		}
		return NewPostgresDataset(opts.PostgresDB, name), nil
	case "kafka":
		topic := opts.KafkaTopic
		if topic == "" {
			topic = "crawlcore-items"
		}
		return NewKafkaDatasetSink(NewLoggingKafkaProducer(nil), topic), nil
	default:
		return nil, fmt.Errorf("storage: unknown dataset adapter: %s", adapter)
	}
}

// BuildKeyValueStore constructs a contract.KeyValueStore for the named
// adapter: "", "memory" (default), or "redis".
func BuildKeyValueStore(adapter string, opts Options) (contract.KeyValueStore, error) {
	switch adapter {
	case "", "memory":
		return NewMemoryKeyValueStore(), nil
	case "redis":
		ttl := opts.RedisTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		var cmd RedisCommander
		if opts.RedisAddr != "" {
			cmd = NewGoRedisCommander(opts.RedisAddr)
		} else {
			cmd = NewLoggingRedisCommander(nil)
		}
		return NewRedisKeyValueStore(cmd, ttl), nil
	default:
		return nil, fmt.Errorf("storage: unknown key-value adapter: %s", adapter)
	}
}
