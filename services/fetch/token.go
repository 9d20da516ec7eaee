// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fetch

import (
	"net/http"
	"strings"

	"github.com/awnumar/memguard"
)

// Token is a bearer token sealed in guarded memory.
//
// The plaintext is only materialized inside a locked buffer for the
// duration of a header write, then wiped.
type Token struct {
	enclave *memguard.Enclave
	hosts   []string
}

// NewToken seals secret and scopes it to the given hosts and their
// subdomains. An empty secret returns nil, which applies no header.
// The secret slice is wiped.
//
// No signal handler is installed; the process keeps its own interrupt
// handling. Call Close on shutdown to wipe guarded memory.
func NewToken(secret []byte, hosts ...string) *Token {
	if len(secret) == 0 {
		return nil
	}
	return &Token{
		enclave: memguard.NewEnclave(secret),
		hosts:   hosts,
	}
}

// Close wipes every guarded buffer of the process. A nil Token is a no-op.
func (t *Token) Close() error {
	if t == nil {
		return nil
	}
	memguard.Purge()
	return nil
}

// appliesTo reports whether the token may be sent to host.
func (t *Token) appliesTo(host string) bool {
	if t == nil {
		return false
	}
	if len(t.hosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, h := range t.hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// authorize sets the Authorization header when the request host is in scope.
func (t *Token) authorize(req *http.Request) error {
	if !t.appliesTo(req.URL.Hostname()) {
		return nil
	}
	buf, err := t.enclave.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	req.Header.Set("Authorization", "Bearer "+buf.String())
	return nil
}
