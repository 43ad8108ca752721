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
	"path/filepath"
	"testing"
)

func TestBuildDatasetDefaultsToMemory(t *testing.T) {
	ds, err := BuildDataset("", Options{})
	if err != nil {
		t.Fatalf("BuildDataset(\"\") = %v", err)
	}
	if _, ok := ds.(*MemoryDataset); !ok {
		t.Fatalf("BuildDataset(\"\") = %T, want *MemoryDataset", ds)
	}
}

func TestBuildDatasetFileRequiresPath(t *testing.T) {
	if _, err := BuildDataset("file", Options{}); err == nil {
		t.Fatalf("BuildDataset(file) without FilePath should error")
	}
	ds, err := BuildDataset("file", Options{FilePath: filepath.Join(t.TempDir(), "items.jsonl")})
	if err != nil {
		t.Fatalf("BuildDataset(file) = %v", err)
	}
	if _, ok := ds.(*FileDataset); !ok {
		t.Fatalf("BuildDataset(file) = %T, want *FileDataset", ds)
	}
}

func TestBuildDatasetPostgresRequiresDB(t *testing.T) {
	if _, err := BuildDataset("postgres", Options{}); err == nil {
		t.Fatalf("BuildDataset(postgres) without PostgresDB should error")
	}
}

func TestBuildDatasetKafkaDefaultsTopic(t *testing.T) {
	ds, err := BuildDataset("kafka", Options{})
	if err != nil {
		t.Fatalf("BuildDataset(kafka) = %v", err)
	}
	sink, ok := ds.(*KafkaDatasetSink)
	if !ok {
		t.Fatalf("BuildDataset(kafka) = %T, want *KafkaDatasetSink", ds)
	}
	if sink.topic != "crawlcore-items" {
		t.Fatalf("topic = %q, want default crawlcore-items", sink.topic)
	}
}

func TestBuildDatasetUnknownAdapterErrors(t *testing.T) {
	if _, err := BuildDataset("nope", Options{}); err == nil {
		t.Fatalf("BuildDataset(nope) should error")
	}
}

func TestBuildKeyValueStoreDefaultsToMemory(t *testing.T) {
	kvs, err := BuildKeyValueStore("", Options{})
	if err != nil {
		t.Fatalf("BuildKeyValueStore(\"\") = %v", err)
	}
	if _, ok := kvs.(*MemoryKeyValueStore); !ok {
		t.Fatalf("BuildKeyValueStore(\"\") = %T, want *MemoryKeyValueStore", kvs)
	}
}

func TestBuildKeyValueStoreRedisFallsBackToLoggingClientWithoutAddr(t *testing.T) {
	kvs, err := BuildKeyValueStore("redis", Options{})
	if err != nil {
		t.Fatalf("BuildKeyValueStore(redis) = %v", err)
	}
	store, ok := kvs.(*RedisKeyValueStore)
	if !ok {
		t.Fatalf("BuildKeyValueStore(redis) = %T, want *RedisKeyValueStore", kvs)
	}
	if _, ok := store.client.(*LoggingRedisCommander); !ok {
		t.Fatalf("client = %T, want *LoggingRedisCommander when RedisAddr is unset", store.client)
	}
}

func TestBuildKeyValueStoreUnknownAdapterErrors(t *testing.T) {
	if _, err := BuildKeyValueStore("nope", Options{}); err == nil {
		t.Fatalf("BuildKeyValueStore(nope) should error")
	}
}
