package main

import (
	"fmt"
	"net/url"
	"strings"
)

// parseAllowedOrigins splits a comma-separated origins string into a
// cleaned slice of origin strings. Returns nil if the input is empty.
func parseAllowedOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var origins []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimRight(p, "/")
		if p != "" {
			origins = append(origins, strings.ToLower(p))
		}
	}
	return origins
}

// validateOrigins validates a raw comma-separated origins string. Each
// entry must be a valid URL with an http or https scheme, a host, and
// no path. Returns the cleaned, normalised string.
func validateOrigins(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parts := strings.Split(raw, ",")
	var cleaned []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimRight(p, "/")
		if p == "" {
			continue
		}
		u, err := url.Parse(p)
		if err != nil {
			return "", fmt.Errorf("invalid origin %q: %v", p, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("invalid origin %q: scheme must be http or https", p)
		}
		if u.Host == "" {
			return "", fmt.Errorf("invalid origin %q: missing host", p)
		}
		if u.Path != "" && u.Path != "/" {
			return "", fmt.Errorf("invalid origin %q: must not contain a path", p)
		}
		cleaned = append(cleaned, strings.ToLower(u.Scheme+"://"+u.Host))
	}
	return strings.Join(cleaned, ","), nil
}
