// Package auth resolves bearer tokens to tenant identities. Keys are
// configured as comma-separated token:label:rps:burst entries; the registry
// is immutable after construction so lookups need no locking.
package auth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kilnrun/kiln/pkg/types"
)

// Registry maps bearer tokens to tenants.
type Registry struct {
	tenants map[string]*types.Tenant
}

// ParseKeys builds a registry from a comma-separated list of
// token:label:rps:burst entries. rps and burst are optional; zero means
// "use the limiter defaults".
func ParseKeys(spec string) (*Registry, error) {
	r := &Registry{tenants: make(map[string]*types.Tenant)}
	if strings.TrimSpace(spec) == "" {
		return r, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed API key entry %q (want token:label[:rps[:burst]])", entry)
		}

		t := &types.Tenant{Token: parts[0], Label: parts[1]}
		if len(parts) > 2 && parts[2] != "" {
			rps, err := strconv.ParseFloat(parts[2], 64)
			if err != nil || rps <= 0 {
				return nil, fmt.Errorf("invalid rps in API key entry %q", entry)
			}
			t.RPS = rps
		}
		if len(parts) > 3 && parts[3] != "" {
			burst, err := strconv.ParseFloat(parts[3], 64)
			if err != nil || burst <= 0 {
				return nil, fmt.Errorf("invalid burst in API key entry %q", entry)
			}
			t.Burst = burst
		}
		if _, dup := r.tenants[t.Token]; dup {
			return nil, fmt.Errorf("duplicate API key token %q", t.Token)
		}
		r.tenants[t.Token] = t
	}
	return r, nil
}

// Tenants returns all configured tenants.
func (r *Registry) Tenants() []*types.Tenant {
	out := make([]*types.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	return out
}

// FromBearer resolves an Authorization header value to a tenant.
func (r *Registry) FromBearer(header string) (*types.Tenant, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, types.E(types.ErrUnauthorized, "missing bearer token")
	}
	token := strings.TrimSpace(header[len(prefix):])
	t, ok := r.tenants[token]
	if !ok {
		return nil, types.E(types.ErrUnauthorized, "unknown bearer token")
	}
	return t, nil
}
