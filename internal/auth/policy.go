package auth

import (
	"net/http"
	"strings"
)

// routeRule maps a path prefix (and optional suffix) to the role needed to
// read and to write it.
type routeRule struct {
	prefix string
	suffix string
	read   Role
	write  Role
}

var apiRules = []routeRule{
	{prefix: "/api/v1/pledges/", suffix: "/executions", read: RoleOperator, write: RoleOperator},
	{prefix: "/api/v1/pledges", read: RoleViewer, write: RoleViewer},
	{prefix: "/api/v1/donations", read: RoleViewer, write: RoleOperator},
}

// Policy decides which requests need a token and which role they need.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds the service policy with the given exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt reports whether the request skips authentication entirely.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role a request needs. Pledge routes are open to
// viewers (ownership is checked downstream) except recording executions.
// Creating donations is operator only. Unknown /api/ routes need a viewer to
// read and an operator to write; anything else is public.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	// Handlers route with the trailing slash trimmed, so rules must too.
	path := strings.TrimRight(r.URL.Path, "/")
	for _, rule := range apiRules {
		if !strings.HasPrefix(path, rule.prefix) || !strings.HasSuffix(path, rule.suffix) {
			continue
		}
		if isRead(r.Method) {
			return rule.read, true
		}
		return rule.write, true
	}
	if strings.HasPrefix(path, "/api/") {
		if isRead(r.Method) {
			return RoleViewer, true
		}
		return RoleOperator, true
	}
	return "", false
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
