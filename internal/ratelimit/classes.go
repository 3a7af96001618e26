package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Class is one rate-limit class: a name for the X-RateLimit-Type header plus
// its window configuration.
type Class struct {
	Name   string
	Max    int
	Window time.Duration
}

// rule matches a request to a class by path prefix and optional method set.
type rule struct {
	prefix  string
	methods map[string]bool // nil matches all methods
	class   Class
}

// Classifier maps requests to rate-limit classes. Rules are evaluated in
// registration order, first match wins; unmatched requests get the default
// class.
type Classifier struct {
	rules        []rule
	defaultClass Class
}

// NewClassifier creates a classifier with the given default class.
func NewClassifier(defaultClass Class) *Classifier {
	defaultClass.Name = "default"
	return &Classifier{defaultClass: defaultClass}
}

// AddRule registers a class for a path prefix. methods may be empty to match
// every method.
func (c *Classifier) AddRule(prefix string, methods []string, class Class) {
	r := rule{prefix: prefix, class: class}
	if len(methods) > 0 {
		r.methods = make(map[string]bool, len(methods))
		for _, m := range methods {
			r.methods[strings.ToUpper(m)] = true
		}
	}
	c.rules = append(c.rules, r)
}

// Classify returns the class for a request.
func (c *Classifier) Classify(r *http.Request) Class {
	for _, rule := range c.rules {
		if !strings.HasPrefix(r.URL.Path, rule.prefix) {
			continue
		}
		if rule.methods != nil && !rule.methods[r.Method] {
			continue
		}
		return rule.class
	}
	return c.defaultClass
}

// KeyParts are the identity fields available when building a composite
// rate-limit key. Whatever is present is included; the remote IP is always
// the fallback component.
type KeyParts struct {
	TenantID string
	UserID   string
	APIKeyID string
	RemoteIP string
}

// BuildKey composes the rate-limit key for a class and caller identity.
func BuildKey(class Class, parts KeyParts) string {
	segments := []string{class.Name}
	if parts.TenantID != "" {
		segments = append(segments, "tenant:"+parts.TenantID)
	}
	if parts.UserID != "" {
		segments = append(segments, "user:"+parts.UserID)
	}
	if parts.APIKeyID != "" {
		segments = append(segments, "key:"+parts.APIKeyID)
	}
	segments = append(segments, "ip:"+parts.RemoteIP)
	return strings.Join(segments, "|")
}

// ClientIP extracts the caller address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if idx := strings.LastIndexByte(r.RemoteAddr, ':'); idx > 0 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

func (c Class) String() string {
	return fmt.Sprintf("%s(%d/%s)", c.Name, c.Max, c.Window)
}
