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

// Package robots implements the robots.txt fetch-and-cache discipline
// (spec §5: "A single global lock guards robots.txt fetch-and-cache per
// origin (LRU capacity, e.g., 1000 entries)."). It owns none of the
// robots.txt grammar itself — that is delegated to an injected
// contract.RobotsTxtParser — only the per-origin caching and the
// single-flight fetch under one lock.
package robots

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"crawlcore/pkg/contract"
)

// DefaultCacheSize is the default LRU capacity, per spec §5's example.
const DefaultCacheSize = 1000

// Cache fetches and caches one contract.RobotsTxtFile per origin.
// Per spec §5, every fetch-and-cache is serialized by a single lock: two
// concurrent lookups for the same (or different) origin never issue
// duplicate fetches.
type Cache struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, contract.RobotsTxtFile]
	client contract.HttpClient
	parser contract.RobotsTxtParser
}

// New constructs a Cache with the given capacity (DefaultCacheSize if
// size <= 0), fetching via client and parsing with parser.
func New(size int, client contract.HttpClient, parser contract.RobotsTxtParser) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, contract.RobotsTxtFile](size)
	if err != nil {
		return nil, err
	}
	return &Cache{cache: c, client: client, parser: parser}, nil
}

// IsAllowed reports whether targetURL may be fetched, per the robots.txt
// of its origin. It fetches and caches that origin's robots.txt file on
// first use.
func (c *Cache) IsAllowed(ctx context.Context, targetURL string) (bool, error) {
	file, err := c.find(ctx, targetURL)
	if err != nil {
		return false, err
	}
	return file.IsAllowed(targetURL), nil
}

// find returns the cached (or freshly fetched) RobotsTxtFile governing
// targetURL's origin.
func (c *Cache) find(ctx context.Context, targetURL string) (contract.RobotsTxtFile, error) {
	origin, err := originOf(targetURL)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if file, ok := c.cache.Get(origin); ok {
		return file, nil
	}

	resp, err := c.client.SendRequest(ctx, origin+"/robots.txt", "GET", nil, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("robots: fetch %s/robots.txt: %w", origin, err)
	}

	var body []byte
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body = resp.Body
	}
	// A missing or erroring robots.txt means "everything allowed" (an
	// empty document parses to an allow-all RobotsTxtFile by convention
	// of every RobotsTxtParser implementation).
	file, err := c.parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("robots: parse %s/robots.txt: %w", origin, err)
	}
	c.cache.Add(origin, file)
	return file, nil
}

func originOf(targetURL string) (string, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}
