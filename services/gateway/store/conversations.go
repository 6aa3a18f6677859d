// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides the in-memory conversation registry for the
// chat gateway.
//
// # Description
//
// The store keeps per-user, per-conversation ordered message logs for
// the lifetime of the process. Logs are append-only: messages are never
// mutated, reordered, or deleted, and there is no eviction — unbounded
// growth is an accepted limitation of the in-memory design, not a bug
// to correct silently.
//
// # Locking
//
// Locking is sharded so unrelated users and conversations never
// contend: a store-level RWMutex guards the user map, a per-user
// RWMutex guards that user's conversation map, and a per-conversation
// mutex serializes appends to one log. Concurrent appends to the same
// conversation serialize in arrival order (last writer appends, never
// overwrites); appends to different conversations proceed in parallel.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

// conversationLog owns one ordered message sequence.
type conversationLog struct {
	mu        sync.Mutex
	createdAt time.Time
	messages  []datatypes.Message
}

// userConversations owns all logs belonging to one user.
type userConversations struct {
	mu    sync.RWMutex
	convs map[string]*conversationLog
}

// ConversationStore is the process-scoped conversation registry.
//
// # Thread Safety
//
// All methods are safe for concurrent use; see the package comment for
// the sharded locking scheme.
type ConversationStore struct {
	mu    sync.RWMutex
	users map[string]*userConversations
	now   func() time.Time
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		users: make(map[string]*userConversations),
		now:   time.Now,
	}
}

// WithClock overrides the store clock. Intended for tests.
func (s *ConversationStore) WithClock(now func() time.Time) *ConversationStore {
	s.now = now
	return s
}

// userFor returns the per-user shard, creating it lazily.
func (s *ConversationStore) userFor(userID string) *userConversations {
	s.mu.RLock()
	uc, ok := s.users[userID]
	s.mu.RUnlock()
	if ok {
		return uc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if uc, ok = s.users[userID]; ok {
		return uc
	}
	uc = &userConversations{convs: make(map[string]*conversationLog)}
	s.users[userID] = uc
	return uc
}

// logFor returns the conversation log, creating it lazily when create
// is set.
func (uc *userConversations) logFor(conversationID string, create bool, now time.Time) *conversationLog {
	uc.mu.RLock()
	log, ok := uc.convs[conversationID]
	uc.mu.RUnlock()
	if ok || !create {
		return log
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()
	if log, ok = uc.convs[conversationID]; ok {
		return log
	}
	log = &conversationLog{createdAt: now}
	uc.convs[conversationID] = log
	return log
}

// GetOrCreate resolves a conversation id for userID.
//
// # Description
//
// When conversationID names an existing conversation of this user it is
// returned unchanged. Otherwise — including when conversationID is
// empty or names a conversation of a different user — a fresh UUID v4
// is minted, an empty log initialized, and the new id returned. Callers
// never choose creation ids; conversationID is a lookup input only.
func (s *ConversationStore) GetOrCreate(userID, conversationID string) string {
	uc := s.userFor(userID)

	if conversationID != "" {
		uc.mu.RLock()
		_, ok := uc.convs[conversationID]
		uc.mu.RUnlock()
		if ok {
			return conversationID
		}
	}

	newID := uuid.New().String()
	uc.logFor(newID, true, s.now().UTC())
	return newID
}

// Append adds a message to the tail of a conversation log, creating the
// (userID, conversationID) slot if absent. The message timestamp is
// assigned here; prior messages are never touched.
func (s *ConversationStore) Append(userID, conversationID, role, content string) {
	now := s.now().UTC()
	log := s.userFor(userID).logFor(conversationID, true, now)

	log.mu.Lock()
	defer log.mu.Unlock()
	log.messages = append(log.messages, datatypes.Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
}

// Read returns a snapshot copy of a conversation's messages in
// insertion order. Unknown keys yield an empty sequence, not an error.
func (s *ConversationStore) Read(userID, conversationID string) []datatypes.Message {
	log := s.userFor(userID).logFor(conversationID, false, time.Time{})
	if log == nil {
		return nil
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	snapshot := make([]datatypes.Message, len(log.messages))
	copy(snapshot, log.messages)
	return snapshot
}

// Has reports whether conversationID exists for userID. A conversation
// owned by a different user is not visible here.
func (s *ConversationStore) Has(userID, conversationID string) bool {
	s.mu.RLock()
	uc, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	uc.mu.RLock()
	defer uc.mu.RUnlock()
	_, ok = uc.convs[conversationID]
	return ok
}

// List returns one summary per conversation of userID, most recently
// created first. CreatedAt is the first message's timestamp; for a
// conversation that has no messages yet the lazy-creation time is used.
func (s *ConversationStore) List(userID string) []datatypes.ConversationSummary {
	s.mu.RLock()
	uc, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	uc.mu.RLock()
	summaries := make([]datatypes.ConversationSummary, 0, len(uc.convs))
	for id, log := range uc.convs {
		log.mu.Lock()
		summary := datatypes.ConversationSummary{
			ID:           id,
			CreatedAt:    log.createdAt,
			MessageCount: len(log.messages),
		}
		if len(log.messages) > 0 {
			summary.CreatedAt = log.messages[0].Timestamp
			summary.LastMessage = log.messages[len(log.messages)-1].Content
		}
		log.mu.Unlock()
		summaries = append(summaries, summary)
	}
	uc.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries
}
