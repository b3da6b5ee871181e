package webdav

import (
	"net/http"
	"strings"
	"sync"
)

// Capabilities summarizes the DAV compliance classes and allowed
// methods a server advertised in an OPTIONS response.
type Capabilities struct {
	Classes []string // e.g. "1", "3", "access-control", "calendar-access"
	Allow   []string // e.g. "GET", "PROPFIND", "REPORT"
}

// Supports reports whether class (e.g. "calendar-access") was present
// in the server's DAV header.
func (c Capabilities) Supports(class string) bool {
	for _, got := range c.Classes {
		if strings.EqualFold(got, class) {
			return true
		}
	}
	return false
}

func parseCapabilities(h http.Header) Capabilities {
	var caps Capabilities
	for _, tok := range splitCommaList(h.Get("DAV")) {
		caps.Classes = append(caps.Classes, tok)
	}
	for _, tok := range splitCommaList(h.Get("Allow")) {
		caps.Allow = append(caps.Allow, tok)
	}
	return caps
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// capabilityCache memoizes Capabilities per client endpoint so that
// later requests reuse the first probe's result; concurrent first calls
// may each probe before one of them stores it. Like the compression
// negotiation cache it is a mutex-guarded map, safe for concurrent use.
type capabilityCache struct {
	mu      sync.RWMutex
	entries map[string]Capabilities
}

func newCapabilityCache() *capabilityCache {
	return &capabilityCache{entries: make(map[string]Capabilities)}
}

func (c *capabilityCache) lookup(origin string) (Capabilities, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	caps, ok := c.entries[origin]
	return caps, ok
}

func (c *capabilityCache) store(origin string, caps Capabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[origin] = caps
}
