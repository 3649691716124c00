// Package policy decides which tactics run automatically, which need
// explicit confirmation, and which are refused outright.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sentra/internal/intent"
)

// Tactic is the policy-level classification of an intent.
type Tactic string

const (
	// Reconnaissance
	TacticPingSweep        Tactic = "ping_sweep"
	TacticPortScan         Tactic = "port_scan"
	TacticServiceDetection Tactic = "service_detection"
	TacticOSFingerprint    Tactic = "os_fingerprint"
	TacticDNSEnumeration   Tactic = "dns_enumeration"
	TacticSubdomainEnum    Tactic = "subdomain_enumeration"

	// Web enumeration
	TacticDirectoryBruteForce Tactic = "directory_brute_force"
	TacticTechnologyDetection Tactic = "technology_detection"

	// Vulnerability assessment
	TacticVulnScan       Tactic = "vuln_scan"
	TacticSSLTLSAnalysis Tactic = "ssl_tls_analysis"

	// Exploitation — always confirm-gated or blocked
	TacticExploitWeakness      Tactic = "exploit_weakness"
	TacticCredentialBruteForce Tactic = "credential_brute_force"
	TacticPasswordSpray        Tactic = "password_spray"
)

// intentTactics classifies every intent kind. Kinds absent here
// (info_query, unknown) produce no command, so the gate never sees them.
var intentTactics = map[intent.Kind]Tactic{
	intent.Ping:             TacticPingSweep,
	intent.HostDiscovery:    TacticPingSweep,
	intent.PortScan:         TacticPortScan,
	intent.ServiceDetection: TacticServiceDetection,
	intent.OSDetection:      TacticOSFingerprint,
	intent.VulnScan:         TacticVulnScan,
	intent.SSLScan:          TacticSSLTLSAnalysis,
	intent.WebDirEnum:       TacticDirectoryBruteForce,
	intent.WebVulnScan:      TacticVulnScan,
	intent.DNSLookup:        TacticDNSEnumeration,
	intent.WhoisLookup:      TacticDNSEnumeration,
	intent.SubdomainEnum:    TacticSubdomainEnum,
	intent.BruteForceSSH:    TacticCredentialBruteForce,
	intent.BruteForceHTTP:   TacticCredentialBruteForce,
	intent.SQLInjection:     TacticExploitWeakness,
}

// TacticFor returns the policy classification of an intent kind.
func TacticFor(kind intent.Kind) (Tactic, bool) {
	tactic, ok := intentTactics[kind]
	return tactic, ok
}

// ExecutionPolicy is the safe-by-default decision matrix.
//
// v1 locked rules:
//   - AllowPersistentChanges is false and stays false: loads that flip
//     it are rejected by validateV1.
//   - ExploitWeakness and CredentialBruteForce always require
//     confirmation.
type ExecutionPolicy struct {
	AllowPersistentChanges bool              `yaml:"allow_persistent_changes"`
	ConfirmBeforeTactics   []Tactic          `yaml:"confirm_before_tactics"`
	BlockedTactics         []Tactic          `yaml:"blocked_tactics"`
	PerTacticRiskCap       map[Tactic]string `yaml:"per_tactic_risk_cap"`
}

// Default returns the v1 policy.
func Default() *ExecutionPolicy {
	return &ExecutionPolicy{
		AllowPersistentChanges: false,
		ConfirmBeforeTactics: []Tactic{
			TacticExploitWeakness,
			TacticCredentialBruteForce,
		},
		BlockedTactics:   []Tactic{TacticPasswordSpray},
		PerTacticRiskCap: map[Tactic]string{},
	}
}

// Load reads a policy file and re-validates the v1 invariants. A file
// cannot relax what v1 locks.
func Load(path string) (*ExecutionPolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	loaded := Default()
	if err := yaml.Unmarshal(raw, loaded); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if err := validateV1(loaded); err != nil {
		return nil, err
	}
	return loaded, nil
}

// validateV1 enforces the locked rules on any policy instance.
func validateV1(p *ExecutionPolicy) error {
	if p.AllowPersistentChanges {
		return fmt.Errorf("policy violation: allow_persistent_changes must be false")
	}
	required := map[Tactic]bool{
		TacticExploitWeakness:      false,
		TacticCredentialBruteForce: false,
	}
	for _, tactic := range p.ConfirmBeforeTactics {
		if _, ok := required[tactic]; ok {
			required[tactic] = true
		}
	}
	for tactic, present := range required {
		if !present {
			return fmt.Errorf("policy violation: confirm_before_tactics missing %s", tactic)
		}
	}
	return nil
}

// RequiresConfirmation reports whether a tactic is confirm-gated.
func (p *ExecutionPolicy) RequiresConfirmation(tactic Tactic) bool {
	for _, t := range p.ConfirmBeforeTactics {
		if t == tactic {
			return true
		}
	}
	return false
}

// Blocked reports whether a tactic is refused outright.
func (p *ExecutionPolicy) Blocked(tactic Tactic) bool {
	for _, t := range p.BlockedTactics {
		if t == tactic {
			return true
		}
	}
	return false
}
