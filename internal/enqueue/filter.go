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

// Package enqueue implements the enqueue-commit protocol's filtering
// stage (spec §4.6.1, §4.6.5): the enqueue-strategy hostname/domain/origin
// predicate and the include/exclude glob-or-regex pattern filter applied
// to every link a handler's add_requests call tries to commit.
package enqueue

import (
	"net/url"
	"regexp"

	"github.com/gobwas/glob"
	"golang.org/x/net/publicsuffix"

	"crawlcore/pkg/request"
)

// StrategyAllowed implements the §4.6.1 enqueue-strategy predicate: does
// target belong to the same origin/hostname/domain as source, per
// strategy? StrategyAll always accepts.
func StrategyAllowed(strategy request.EnqueueStrategy, sourceURL, targetURL string) (bool, error) {
	if strategy == "" {
		strategy = request.StrategyAll
	}
	if strategy == request.StrategyAll {
		return true, nil
	}

	origin, err := url.Parse(sourceURL)
	if err != nil {
		return false, err
	}
	target, err := url.Parse(targetURL)
	if err != nil {
		return false, err
	}

	switch strategy {
	case request.StrategySameOrigin:
		return target.Scheme == origin.Scheme &&
			target.Hostname() == origin.Hostname() &&
			effectivePort(target) == effectivePort(origin), nil
	case request.StrategySameHostname:
		return target.Hostname() == origin.Hostname(), nil
	case request.StrategySameDomain:
		td, err := registrableDomain(target.Hostname())
		if err != nil {
			return false, err
		}
		od, err := registrableDomain(origin.Hostname())
		if err != nil {
			return false, err
		}
		return td == od, nil
	default:
		return true, nil
	}
}

// effectivePort returns the URL's explicit port, or the scheme's default
// port when none is given, so http://h/ and http://h:80/ compare equal.
func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch u.Scheme {
	case "https":
		return "443"
	case "http":
		return "80"
	default:
		return ""
	}
}

// registrableDomain returns the Public Suffix List registrable domain for
// host (e.g. "www.example.co.uk" -> "example.co.uk").
func registrableDomain(host string) (string, error) {
	return publicsuffix.EffectiveTLDPlusOne(host)
}

// Patterns is a compiled include/exclude pattern set, each entry either a
// glob (gobwas/glob) or a regular expression, applied per spec §4.6.1's
// "include/exclude glob or regex patterns (exclude takes precedence)".
type Patterns struct {
	include []matcher
	exclude []matcher
}

type matcher interface {
	Match(s string) bool
}

type globMatcher struct{ g glob.Glob }

func (m globMatcher) Match(s string) bool { return m.g.Match(s) }

type regexMatcher struct{ re *regexp.Regexp }

func (m regexMatcher) Match(s string) bool { return m.re.MatchString(s) }

// Pattern is one include/exclude pattern: either Glob or Regex is set,
// never both.
type Pattern struct {
	Glob  string
	Regex string
}

// NewPatterns compiles include and exclude pattern lists.
func NewPatterns(include, exclude []Pattern) (*Patterns, error) {
	inc, err := compileAll(include)
	if err != nil {
		return nil, err
	}
	exc, err := compileAll(exclude)
	if err != nil {
		return nil, err
	}
	return &Patterns{include: inc, exclude: exc}, nil
}

func compileAll(pats []Pattern) ([]matcher, error) {
	out := make([]matcher, 0, len(pats))
	for _, p := range pats {
		if p.Regex != "" {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, err
			}
			out = append(out, regexMatcher{re: re})
			continue
		}
		g, err := glob.Compile(p.Glob)
		if err != nil {
			return nil, err
		}
		out = append(out, globMatcher{g: g})
	}
	return out, nil
}

// Allowed reports whether targetURL survives the include/exclude filter:
// exclude patterns take precedence, and when any include pattern is
// present, targetURL must match at least one of them (spec §8 invariant
// 5: "Enqueue filter soundness").
func (p *Patterns) Allowed(targetURL string) bool {
	if p == nil {
		return true
	}
	for _, m := range p.exclude {
		if m.Match(targetURL) {
			return false
		}
	}
	if len(p.include) == 0 {
		return true
	}
	for _, m := range p.include {
		if m.Match(targetURL) {
			return true
		}
	}
	return false
}
