// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ratelimit implements fixed-window request throttling per
// identity.
//
// Each protected operation category (credential exchange, conversation
// turns) gets its own limiter instance, so an identity's window in one
// category never affects another. Windows are aligned to each
// identity's first request in that category, not to a global clock.
package ratelimit

import (
	"sync"
	"time"
)

// window tracks one identity's current counting window.
type window struct {
	start time.Time
	count int
}

// FixedWindowLimiter admits up to Limit requests per identity within
// each Window-sized interval.
//
// # Description
//
// The counter increments on every admitted request and resets when the
// window elapses. Rejections carry the remaining wait so callers can
// surface a retry hint instead of silently dropping the request.
//
// # Thread Safety
//
// Safe for concurrent use. A single mutex guards the window map; the
// critical section is a map lookup plus integer arithmetic, so
// contention stays negligible next to per-key sharding complexity.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewFixedWindowLimiter creates a limiter admitting limit requests per
// identity within each window.
func NewFixedWindowLimiter(limit int, windowDuration time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		limit:   limit,
		window:  windowDuration,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// WithClock overrides the limiter clock. Intended for tests.
func (l *FixedWindowLimiter) WithClock(now func() time.Time) *FixedWindowLimiter {
	l.now = now
	return l
}

// Admit records one request for identity and reports whether it is
// within the limit.
//
// # Outputs
//
//   - ok: true when the request is admitted.
//   - retryAfter: when rejected, the time until the current window
//     elapses and the counter resets; zero when admitted.
func (l *FixedWindowLimiter) Admit(identity string) (ok bool, retryAfter time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[identity]
	if !exists || now.Sub(w.start) >= l.window {
		l.windows[identity] = &window{start: now, count: 1}
		return true, 0
	}

	if w.count >= l.limit {
		return false, w.start.Add(l.window).Sub(now)
	}
	w.count++
	return true, 0
}

// Limit returns the configured per-window ceiling.
func (l *FixedWindowLimiter) Limit() int { return l.limit }

// Window returns the configured window duration.
func (l *FixedWindowLimiter) Window() time.Duration { return l.window }
