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

package request

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// DeriveUniqueKey canonicalizes url, optionally mixes in method and a
// payload digest, and returns the deduplication identity for a Request.
// Canonicalization lower-cases the scheme/host, drops a default port,
// sorts query parameters, and strips the fragment when stripFragment is
// true (the default; callers that need fragment-sensitive routing, e.g.
// single-page app crawls, pass false).
func DeriveUniqueKey(rawURL, method string, payload []byte, stripFragment bool) string {
	canon := CanonicalizeURL(rawURL, stripFragment)
	var b strings.Builder
	b.WriteString(canon)
	if method != "" && !strings.EqualFold(method, "GET") {
		b.WriteString("\n")
		b.WriteString(strings.ToUpper(method))
	}
	if len(payload) > 0 {
		sum := sha256.Sum256(payload)
		b.WriteString("\n")
		b.WriteString(hex.EncodeToString(sum[:]))
	}
	return b.String()
}

// CanonicalizeURL normalizes a URL for deduplication purposes: lower-cases
// scheme and host, removes a default port for http/https, sorts query
// parameters by key, and optionally strips the fragment.
func CanonicalizeURL(rawURL string, stripFragment bool) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Not a parseable URL; fall back to the raw string so callers
		// still get a stable, if unnormalized, identity.
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}
	if u.RawQuery != "" {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var qb strings.Builder
		for i, k := range keys {
			vals := q[k]
			sort.Strings(vals)
			for j, v := range vals {
				if i > 0 || j > 0 {
					qb.WriteString("&")
				}
				qb.WriteString(k)
				qb.WriteString("=")
				qb.WriteString(v)
			}
		}
		u.RawQuery = qb.String()
	}
	if stripFragment {
		u.Fragment = ""
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// DeriveID returns a deterministic, fixed-length digest of uniqueKey. It is
// not a random identifier: the same unique key always yields the same ID,
// the way crypto/sha256 over a stable namespace deterministically derives
// a UUID in the uuid.NewSHA1/NewMD5 idiom.
func DeriveID(uniqueKey string) string {
	sum := sha256.Sum256([]byte(uniqueKey))
	return hex.EncodeToString(sum[:8])
}
