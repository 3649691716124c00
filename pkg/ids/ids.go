// Package ids mints canonical entity identifiers.
//
// Every parser routes id construction through this package. Ids are pure
// functions of an entity's kind and natural key: reconstructing from the
// same key always yields the same id. Timestamps, random values and
// parser identity never enter an id. A credential's secret never enters
// an id either.
package ids

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Entity kinds stored in the knowledge graph.
const (
	KindHost          = "host"
	KindPort          = "port"
	KindService       = "service"
	KindVulnerability = "vulnerability"
	KindWebResource   = "web_resource"
	KindDNS           = "dns"
	KindCertificate   = "certificate"
	KindCredential    = "credential"
	KindFile          = "file"
)

// Relationship types between entities.
const (
	RelHasPort          = "has_port"
	RelHasService       = "has_service"
	RelHasVulnerability = "has_vulnerability"
	RelHasWebResource   = "has_web_resource"
	RelResolvesTo       = "resolves_to"
)

// Host returns the canonical host id for an IPv4 or IPv6 address.
//
//	192.168.1.10 -> host_192_168_1_10
//	::1          -> host___1
func Host(ip string) string {
	normalized := strings.NewReplacer(".", "_", ":", "_").Replace(ip)
	return "host_" + normalized
}

// Port returns the canonical port id.
//
//	192.168.1.10:80/tcp -> host_192_168_1_10_port_80_tcp
func Port(ip string, port int, protocol string) string {
	return fmt.Sprintf("%s_port_%d_%s", Host(ip), port, strings.ToLower(protocol))
}

// Service returns the canonical service id for a service on a port.
//
//	host_..._port_80_tcp + http -> host_..._port_80_tcp_service_http
func Service(portID, serviceName string) string {
	normalized := strings.ReplaceAll(strings.ToLower(serviceName), " ", "_")
	return portID + "_service_" + normalized
}

// Vulnerability returns the canonical vulnerability id for a CVE or
// synthetic identifier on a service.
//
//	service id + CVE-2024-1234 -> ..._vuln_cve_2024_1234
func Vulnerability(serviceID, cveOrType string) string {
	normalized := strings.ReplaceAll(strings.ToLower(cveOrType), "-", "_")
	return serviceID + "_vuln_" + normalized
}

// WebResource returns the canonical web resource id. The URL is hashed
// to a fixed length so long and special-character paths stay valid.
func WebResource(serviceID, url string) string {
	normalized := strings.TrimRight(strings.ToLower(url), "/")
	sum := md5.Sum([]byte(normalized))
	return serviceID + "_web_hash_" + hex.EncodeToString(sum[:])[:8]
}

// DNS returns the canonical dns id for a domain.
//
//	example.com -> dns_example_com
func DNS(domain string) string {
	normalized := strings.ReplaceAll(strings.ToLower(domain), ".", "_")
	return "dns_" + normalized
}

// Certificate returns the canonical certificate id for a SHA256
// fingerprint.
//
//	AB:CD:EF:... -> cert_abcdef...
func Certificate(fingerprint string) string {
	normalized := strings.ReplaceAll(strings.ToLower(fingerprint), ":", "")
	return "cert_" + normalized
}

// Credential returns the canonical credential id. The secret is never
// part of the id.
func Credential(username, serviceID string) string {
	return "cred_" + strings.ToLower(username) + "_" + serviceID
}

// File returns the canonical file id for an absolute path on a host.
func File(hostID, path string) string {
	sum := md5.Sum([]byte(path))
	return "file_" + hostID + "_hash_" + hex.EncodeToString(sum[:])[:8]
}
