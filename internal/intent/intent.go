// Package intent turns free-text requests into typed intents.
//
// The LLM collaborator has exactly one job here: decide what the user
// wants. It never names tools, argv, risk levels or root requirements —
// those come from the registry. Responses that try are rejected.
package intent

// Kind is the closed set of user intents. The resolver publishes this
// vocabulary in its prompt and rejects anything outside it.
type Kind string

const (
	// Liveness
	Ping Kind = "ping"

	// Scanning
	HostDiscovery    Kind = "host_discovery"
	PortScan         Kind = "port_scan"
	ServiceDetection Kind = "service_detection"
	OSDetection      Kind = "os_detection"
	VulnScan         Kind = "vuln_scan"
	SSLScan          Kind = "ssl_scan"

	// Web enumeration
	WebDirEnum  Kind = "web_dir_enum"
	WebVulnScan Kind = "web_vuln_scan"

	// Recon
	DNSLookup     Kind = "dns_lookup"
	WhoisLookup   Kind = "whois_lookup"
	SubdomainEnum Kind = "subdomain_enum"

	// Brute force
	BruteForceSSH  Kind = "brute_force_ssh"
	BruteForceHTTP Kind = "brute_force_http"

	// Exploitation
	SQLInjection Kind = "sql_injection"

	// No command produced
	InfoQuery Kind = "info_query"
	Unknown   Kind = "unknown"
)

// Kinds lists every member of the closed set.
func Kinds() []Kind {
	return []Kind{
		Ping,
		HostDiscovery, PortScan, ServiceDetection, OSDetection, VulnScan, SSLScan,
		WebDirEnum, WebVulnScan,
		DNSLookup, WhoisLookup, SubdomainEnum,
		BruteForceSSH, BruteForceHTTP,
		SQLInjection,
		InfoQuery, Unknown,
	}
}

// Valid reports membership in the closed kind set.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Intent is the typed result of resolution. Params is a closed per-kind
// schema (ports, count, wordlist, extensions, username, passlist, data)
// enforced at the resolver boundary.
type Intent struct {
	Kind               Kind              `json:"intent_type"`
	Target             string            `json:"target"`
	Params             map[string]string `json:"params"`
	Rationale          string            `json:"rationale"`
	NeedsClarification bool              `json:"needs_clarification"`
	ClarificationWhy   string            `json:"clarification_reason"`
}

// Parameter names accepted per kind. Anything else is stripped before
// the command builder sees the intent.
var allowedParams = map[Kind][]string{
	Ping:             {"count"},
	HostDiscovery:    {},
	PortScan:         {"ports"},
	ServiceDetection: {"ports"},
	OSDetection:      {},
	VulnScan:         {"ports"},
	SSLScan:          {"port"},
	WebDirEnum:       {"wordlist", "extensions"},
	WebVulnScan:      {"port"},
	DNSLookup:        {"record_type"},
	WhoisLookup:      {},
	SubdomainEnum:    {"wordlist"},
	BruteForceSSH:    {"username", "userlist", "password", "passlist"},
	BruteForceHTTP:   {"username", "passlist"},
	SQLInjection:     {"url", "data"},
	InfoQuery:        {},
	Unknown:          {},
}

// FilterParams drops parameters outside the kind's schema.
func (i *Intent) FilterParams() {
	allowed := allowedParams[i.Kind]
	filtered := make(map[string]string, len(i.Params))
	for _, name := range allowed {
		if value, ok := i.Params[name]; ok && value != "" {
			filtered[name] = value
		}
	}
	i.Params = filtered
}
