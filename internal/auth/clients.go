package auth

import (
	"fmt"
	"strings"
)

// Clients maps client IDs to their decoded API-key hashes.
type Clients map[string]keyHash

// ParseClients parses "id:hash,id:hash" where each hash is HashAPIKey output.
// Malformed hashes are rejected here so a bad deployment fails at startup
// instead of on the first token request.
func ParseClients(spec string) (Clients, error) {
	clients := Clients{}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, encoded, ok := strings.Cut(entry, ":")
		if !ok || id == "" || encoded == "" {
			return nil, fmt.Errorf("auth: client entry %q: want id:hash", entry)
		}
		if _, dup := clients[id]; dup {
			return nil, fmt.Errorf("auth: duplicate client %q", id)
		}
		h, err := parseHash(encoded)
		if err != nil {
			return nil, fmt.Errorf("auth: client %q: %w", id, err)
		}
		clients[id] = h
	}
	return clients, nil
}

// Authenticate reports whether apiKey belongs to clientID. Unknown clients
// cost the same hash work as known ones.
func (c Clients) Authenticate(clientID, apiKey string) bool {
	h, ok := c[clientID]
	if !ok {
		DummyVerify()
		return false
	}
	return h.matches(apiKey)
}
