package ids

import (
	"fmt"
	"regexp"

	sentraerrors "sentra/pkg/errors"
)

// Format patterns per entity kind. The store checks these at insert
// time; a mismatch means a parser minted an id outside this package.
var patterns = map[string]*regexp.Regexp{
	KindHost:          regexp.MustCompile(`^host_[0-9a-f_]+$`),
	KindPort:          regexp.MustCompile(`^host_[0-9a-f_]+_port_\d+_(tcp|udp)$`),
	KindService:       regexp.MustCompile(`^host_[0-9a-f_]+_port_\d+_(tcp|udp)_service_[a-z0-9_./-]+$`),
	KindVulnerability: regexp.MustCompile(`^host_[0-9a-f_]+_port_\d+_(tcp|udp)_service_[a-z0-9_./-]+_vuln_[a-z0-9_.]+$`),
	KindWebResource:   regexp.MustCompile(`^host_[0-9a-f_]+_port_\d+_(tcp|udp)_service_[a-z0-9_./-]+_web_hash_[a-f0-9]{8}$`),
	KindDNS:           regexp.MustCompile(`^dns_[a-z0-9_-]+$`),
	KindCertificate:   regexp.MustCompile(`^cert_[a-f0-9]+$`),
	KindCredential:    regexp.MustCompile(`^cred_[a-z0-9_.@-]+_host_[0-9a-f_]+_port_\d+_(tcp|udp)_service_[a-z0-9_./-]+$`),
	KindFile:          regexp.MustCompile(`^file_host_[0-9a-f_]+_hash_[a-f0-9]{8}$`),
}

// Validate checks that id matches the canonical format for kind.
func Validate(kind, id string) error {
	pattern, ok := patterns[kind]
	if !ok {
		return fmt.Errorf("%w: unknown entity kind %q", sentraerrors.ErrInvalidID, kind)
	}
	if !pattern.MatchString(id) {
		return fmt.Errorf("%w: %q does not match %s format", sentraerrors.ErrInvalidID, id, kind)
	}
	return nil
}

// KnownKind reports whether kind is part of the closed entity kind set.
func KnownKind(kind string) bool {
	_, ok := patterns[kind]
	return ok
}
