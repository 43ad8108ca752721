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

// Package demo wires a runnable crawl together: a plain net/http-backed
// contract.HttpClient, the protocol middleware that classifies its
// responses per spec §6.2, and a default handler, all for
// cmd/crawl-demo. None of this is meant as a general-purpose HTTP client
// library (concrete HTTP clients are explicitly out of scope) — it is the
// minimum transport needed to drive the Crawler Dispatcher end to end.
package demo

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"crawlcore/pkg/contract"
	"crawlcore/pkg/request"
)

// ClientConfig tunes the underlying *http.Transport. The defaults mirror
// tools/http-loadgen's connection-reuse settings, since both exist to send
// many requests to a handful of hosts without re-dialing each time.
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// withDefaults fills zero-valued tunables with the loadgen-derived
// defaults.
func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 256
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = 256
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = 30 * time.Second
	}
	return c
}

// Client is a contract.HttpClient backed by net/http, reusing connections
// across requests the way tools/http-loadgen does.
type Client struct {
	http *http.Client
}

// NewClient constructs a Client from cfg.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	return &Client{http: &http.Client{Transport: transport, Timeout: cfg.Timeout}}
}

// SendRequest performs one bare HTTP request, per contract.HttpClient.
func (c *Client) SendRequest(ctx context.Context, url, method string, headers map[string]string, payload []byte, sess contract.SessionLike, proxy contract.ProxyInfo) (*contract.HttpResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytesReader(payload))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	loadedURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		loadedURL = resp.Request.URL.String()
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	return &contract.HttpResponse{
		StatusCode: resp.StatusCode,
		Headers:    respHeaders,
		Body:       body,
		LoadedURL:  loadedURL,
	}, nil
}

// Crawl sends req and pairs the response with it, per contract.HttpClient.
func (c *Client) Crawl(ctx context.Context, req *request.Request, sess contract.SessionLike, proxy contract.ProxyInfo) (*contract.HttpCrawlingResult, error) {
	resp, err := c.SendRequest(ctx, req.URL, req.Method, req.Headers, req.Payload, sess, proxy)
	if err != nil {
		return nil, err
	}
	return &contract.HttpCrawlingResult{Request: req, Response: resp}, nil
}

func bytesReader(payload []byte) io.Reader {
	if len(payload) == 0 {
		return nil
	}
	return bytes.NewReader(payload)
}
