package parsers

import (
	"net"
	"regexp"
	"strconv"
	"strings"
)

var (
	ipv4Pattern = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)
	ipv6Pattern = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{0,4}\b`)
	portTriple  = regexp.MustCompile(`^(\d{1,5})/(tcp|udp)$`)
)

// ExtractIPs pulls every valid IPv4 and IPv6 address out of text.
func ExtractIPs(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, candidate := range append(ipv4Pattern.FindAllString(text, -1), ipv6Pattern.FindAllString(text, -1)...) {
		if net.ParseIP(candidate) == nil {
			continue
		}
		if !seen[candidate] {
			seen[candidate] = true
			out = append(out, candidate)
		}
	}
	return out
}

// ParsePortTriple splits "80/tcp" into number and protocol.
func ParsePortTriple(s string) (int, string, bool) {
	m := portTriple.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, "", false
	}
	port, err := strconv.Atoi(m[1])
	if err != nil || port < 1 || port > 65535 {
		return 0, "", false
	}
	return port, m[2], true
}

// CanonicalURL lowercases the scheme and host and strips the trailing
// slash, keeping path case intact.
func CanonicalURL(raw string) string {
	trimmed := strings.TrimRight(raw, "/")
	if idx := strings.Index(trimmed, "://"); idx != -1 {
		scheme := strings.ToLower(trimmed[:idx])
		rest := trimmed[idx+3:]
		if slash := strings.IndexByte(rest, '/'); slash != -1 {
			return scheme + "://" + strings.ToLower(rest[:slash]) + rest[slash:]
		}
		return scheme + "://" + strings.ToLower(rest)
	}
	return trimmed
}

// TokenizeBanner splits a service banner into product tokens, dropping
// punctuation-only fragments.
func TokenizeBanner(banner string) []string {
	fields := strings.FieldsFunc(banner, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == ';'
	})
	var out []string
	for _, field := range fields {
		trimmed := strings.Trim(field, "()[]{}\"'")
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// normalizeServiceName lowercases and underscores a service name so it
// is stable inside ids.
func normalizeServiceName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
