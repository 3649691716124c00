package registry

import (
	"testing"

	"sentra/internal/intent"
)

func TestLoadDefaults(t *testing.T) {
	reg := New()
	if err := LoadDefaults(reg); err != nil {
		t.Fatalf("defaults failed to load: %v", err)
	}

	testCases := []struct {
		kind   intent.Kind
		binary string
		toolID string
	}{
		{intent.Ping, "ping", "ping"},
		{intent.HostDiscovery, "nmap", "nmap_ping_sweep"},
		{intent.PortScan, "nmap", "nmap_port_scan"},
		{intent.WebDirEnum, "gobuster", "gobuster_dir"},
		{intent.WebVulnScan, "nikto", "nikto_scan"},
		{intent.BruteForceSSH, "hydra", "hydra_ssh"},
		{intent.SQLInjection, "sqlmap", "sqlmap_test"},
		{intent.DNSLookup, "dig", "dig_lookup"},
		{intent.WhoisLookup, "whois", "whois_lookup"},
	}

	for _, tc := range testCases {
		def, ok := reg.Lookup(tc.kind)
		if !ok {
			t.Errorf("no tool registered for %s", tc.kind)
			continue
		}
		if def.Binary != tc.binary {
			t.Errorf("%s: expected binary %s, got %s", tc.kind, tc.binary, def.Binary)
		}
		if def.ToolID != tc.toolID {
			t.Errorf("%s: expected tool id %s, got %s", tc.kind, tc.toolID, def.ToolID)
		}
	}
}

func TestRegisterRejectsUnknownBinary(t *testing.T) {
	reg := New()
	err := reg.Register(intent.PortScan, ToolDef{ToolID: "evil", Binary: "netcat"})
	if err == nil {
		t.Error("expected non-allowlisted binary to be rejected")
	}
}

func TestRegisterRejectsBadTemplates(t *testing.T) {
	testCases := []struct {
		name     string
		template string
	}{
		{"no placeholder", "-p"},
		{"two placeholders", "-p {value} {value}"},
		{"shell metacharacters", "-p {value};ls"},
		{"subshell", "-p $({value})"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg := New()
			err := reg.Register(intent.PortScan, ToolDef{
				ToolID:       "t",
				Binary:       "nmap",
				ArgTemplates: map[string]string{"ports": tc.template},
			})
			if err == nil {
				t.Errorf("expected template %q to be rejected", tc.template)
			}
		})
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	reg := New()
	if err := LoadDefaults(reg); err != nil {
		t.Fatalf("defaults failed to load: %v", err)
	}

	first, _ := reg.Lookup(intent.PortScan)
	first.Binary = "tampered"

	second, _ := reg.Lookup(intent.PortScan)
	if second.Binary != "nmap" {
		t.Error("Lookup must return copies, registry was mutated")
	}
}

func TestExploitToolsFlagPersistentChange(t *testing.T) {
	reg := New()
	if err := LoadDefaults(reg); err != nil {
		t.Fatalf("defaults failed to load: %v", err)
	}

	for _, kind := range []intent.Kind{intent.BruteForceSSH, intent.BruteForceHTTP, intent.SQLInjection} {
		def, ok := reg.Lookup(kind)
		if !ok {
			t.Fatalf("no tool for %s", kind)
		}
		if !def.CreatesPersistentChange {
			t.Errorf("%s must be flagged as creating persistent changes", kind)
		}
	}
}
