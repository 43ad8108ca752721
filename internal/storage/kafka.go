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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crawlcore/pkg/contract"
)

// KafkaProducer is a minimal abstraction over a Kafka client.
//
// Requirements for a production implementation:
//   - Idempotent producer on (enable.idempotence=true)
//   - Use CommitID as the message key so broker dedup and per-key
//     ordering are preserved
//   - acks=all
//
// We intentionally avoid importing a specific Kafka client library here;
// callers inject whichever one they use.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// LoggingKafkaProducer is a dependency-free demo stand-in. Not for
// production use.
type LoggingKafkaProducer struct {
	log func(format string, args ...any)
}

func NewLoggingKafkaProducer(log func(format string, args ...any)) *LoggingKafkaProducer {
	if log == nil {
		log = func(string, ...any) {}
	}
	return &LoggingKafkaProducer{log: log}
}

func (p *LoggingKafkaProducer) Produce(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.log("[kafka-demo] topic=%s key=%s value_len=%d headers=%v", topic, string(key), len(value), headers)
	return nil
}

// datasetMessage is the payload published for both PushData items and
// CommitBatch entries.
type datasetMessage struct {
	Key         string `json:"key,omitempty"`
	Item        any    `json:"item,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	CommitID    string `json:"commit_id"`
	TsUnixMs    int64  `json:"ts_unix_ms"`
}

var errKafkaSinkIsWriteOnly = errors.New("storage: KafkaDatasetSink is write-only; materialized reads belong to the downstream consumer")

// KafkaDatasetSink publishes dataset items (or use_state commits) onto a
// Kafka topic; it does not materialize any state locally. Idempotency
// comes from the producer's own retry dedup plus a stable CommitID
// consumers can track per key, exactly as the teacher's KafkaPersister
// delegates materialization to downstream consumers rather than applying
// state itself.
type KafkaDatasetSink struct {
	producer       KafkaProducer
	topic          string
	defaultTimeout time.Duration
}

// NewKafkaDatasetSink returns a sink publishing to topic via producer.
func NewKafkaDatasetSink(producer KafkaProducer, topic string) *KafkaDatasetSink {
	return &KafkaDatasetSink{producer: producer, topic: topic, defaultTimeout: 10 * time.Second}
}

func (k *KafkaDatasetSink) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok || k.defaultTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, k.defaultTimeout)
}

func (k *KafkaDatasetSink) PushData(ctx context.Context, items []map[string]any) error {
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := k.withTimeout(ctx)
	defer cancel()

	for _, item := range items {
		id := newCommitID()
		msg := datasetMessage{Item: item, CommitID: id, TsUnixMs: time.Now().UnixMilli()}
		if err := k.publish(ctx, id, msg); err != nil {
			return err
		}
	}
	return nil
}

func (k *KafkaDatasetSink) publish(ctx context.Context, commitID string, msg datasetMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("storage: kafka marshal: %w", err)
	}
	headers := map[string]string{"content-type": "application/json"}
	if err := k.producer.Produce(ctx, k.topic, []byte(commitID), b, headers); err != nil {
		return fmt.Errorf("storage: kafka produce commit=%s: %w", commitID, err)
	}
	return nil
}

// CommitBatch implements Committer for use_state's locked-slot writes,
// publishing each entry keyed by its caller-supplied CommitID.
func (k *KafkaDatasetSink) CommitBatch(ctx context.Context, entries []CommitEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := k.withTimeout(ctx)
	defer cancel()

	for _, e := range entries {
		if e.CommitID == "" {
			return errors.New("storage: CommitEntry.CommitID must be set")
		}
		msg := datasetMessage{
			Key:         e.Key,
			Item:        string(e.Value),
			ContentType: e.ContentType,
			CommitID:    e.CommitID,
			TsUnixMs:    time.Now().UnixMilli(),
		}
		if err := k.publish(ctx, e.CommitID, msg); err != nil {
			return err
		}
	}
	return nil
}

func (k *KafkaDatasetSink) GetData(context.Context, int, int) ([]map[string]any, error) {
	return nil, errKafkaSinkIsWriteOnly
}

func (k *KafkaDatasetSink) IterateItems(context.Context, func(item map[string]any) bool) error {
	return errKafkaSinkIsWriteOnly
}

func (k *KafkaDatasetSink) WriteToCSV(context.Context, contract.WriteCloser) error {
	return errKafkaSinkIsWriteOnly
}

func (k *KafkaDatasetSink) WriteToJSON(context.Context, contract.WriteCloser) error {
	return errKafkaSinkIsWriteOnly
}

func (k *KafkaDatasetSink) Drop(context.Context) error {
	return errKafkaSinkIsWriteOnly
}

func (k *KafkaDatasetSink) Purge(context.Context) error {
	return errKafkaSinkIsWriteOnly
}
