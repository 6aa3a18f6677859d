// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for an unknown username or a password
// that does not match the stored digest. The two cases are deliberately
// indistinguishable to callers.
var ErrBadCredentials = errors.New("invalid username or password")

// CredentialStore holds provisioned credentials as bcrypt digests.
//
// # Description
//
// Credentials are immutable after provisioning: the store is populated
// at construction and only read afterwards, so no locking is needed.
// The current deployment scope is a single operator subject, but the
// store accepts any number of identities.
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type CredentialStore struct {
	digests map[string][]byte
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{digests: make(map[string][]byte)}
}

// Provision hashes password with bcrypt and registers it for username.
// Re-provisioning an existing username replaces its digest.
func (cs *CredentialStore) Provision(username, password string) error {
	if username == "" {
		return fmt.Errorf("cannot provision an empty username")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password for %q: %w", username, err)
	}
	cs.digests[username] = digest
	return nil
}

// ProvisionDigest registers a pre-computed bcrypt digest for username,
// for deployments that inject the hash rather than the plaintext.
func (cs *CredentialStore) ProvisionDigest(username string, digest []byte) error {
	if username == "" {
		return fmt.Errorf("cannot provision an empty username")
	}
	// Reject digests bcrypt itself cannot parse so failures surface at
	// startup, not on the first login attempt.
	if err := bcrypt.CompareHashAndPassword(digest, []byte("probe")); err != nil &&
		!errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return fmt.Errorf("invalid bcrypt digest for %q: %w", username, err)
	}
	cs.digests[username] = digest
	return nil
}

// Verify checks a presented password against the stored digest.
//
// Returns ErrBadCredentials for both an unknown username and a digest
// mismatch.
func (cs *CredentialStore) Verify(username, password string) error {
	digest, ok := cs.digests[username]
	if !ok {
		// Burn a comparison anyway so unknown users cost the same as
		// known users with a wrong password.
		_ = bcrypt.CompareHashAndPassword(unknownUserDigest, []byte(password))
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(digest, []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// unknownUserDigest is a fixed digest compared against for unknown
// usernames to keep Verify's timing uniform.
var unknownUserDigest = func() []byte {
	d, err := bcrypt.GenerateFromPassword([]byte("unknown-user-placeholder"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return d
}()
