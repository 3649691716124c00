package registry

import (
	"time"

	"sentra/internal/intent"
)

// Parser binding names resolved by the coordinator.
const (
	ParserPing         = "ping"
	ParserNmapSweep    = "nmap_ping_sweep"
	ParserNmapPortScan = "nmap_port_scan"
	ParserGobusterDir  = "gobuster_dir"
	ParserDNS          = "dns_lookup"
	ParserWhois        = "whois"
	ParserGeneric      = "generic"
)

// LoadDefaults registers the core tool set.
func LoadDefaults(r *Registry) error {
	defs := map[intent.Kind]ToolDef{
		intent.Ping: {
			ToolID: "ping",
			Binary: "ping",
			ArgTemplates: map[string]string{
				"count": "-c {value}",
			},
			DefaultParams: map[string]string{
				"count": "4",
			},
			Risk:        RiskLow,
			Parser:      ParserPing,
			Timeout:     30 * time.Second,
			Description: "ICMP liveness probe",
		},
		intent.HostDiscovery: {
			ToolID:      "nmap_ping_sweep",
			Binary:      "nmap",
			BaseArgs:    []string{"-sn"},
			Risk:        RiskLow,
			Parser:      ParserNmapSweep,
			Timeout:     2 * time.Minute,
			Description: "discover live hosts on a network range",
		},
		intent.PortScan: {
			ToolID:   "nmap_port_scan",
			Binary:   "nmap",
			BaseArgs: []string{"-sT"},
			ArgTemplates: map[string]string{
				"ports": "-p {value}",
			},
			Risk:        RiskMedium,
			Parser:      ParserNmapPortScan,
			Timeout:     10 * time.Minute,
			Description: "TCP connect port scan",
		},
		intent.ServiceDetection: {
			ToolID:   "nmap_service_detection",
			Binary:   "nmap",
			BaseArgs: []string{"-sV", "--version-intensity", "5"},
			ArgTemplates: map[string]string{
				"ports": "-p {value}",
			},
			Risk:        RiskMedium,
			Parser:      ParserNmapPortScan,
			Timeout:     10 * time.Minute,
			Description: "service and version detection",
		},
		intent.OSDetection: {
			ToolID:       "nmap_os_detection",
			Binary:       "nmap",
			BaseArgs:     []string{"-O", "-sV"},
			Risk:         RiskMedium,
			RequiresRoot: true,
			Parser:       ParserNmapPortScan,
			Timeout:      10 * time.Minute,
			Description:  "operating system fingerprinting",
		},
		intent.VulnScan: {
			ToolID:   "nmap_vuln_scan",
			Binary:   "nmap",
			BaseArgs: []string{"--script", "vuln"},
			ArgTemplates: map[string]string{
				"ports": "-p {value}",
			},
			Risk:         RiskHigh,
			RequiresRoot: true,
			Parser:       ParserGeneric,
			Timeout:      20 * time.Minute,
			Description:  "NSE vulnerability scripts",
		},
		intent.SSLScan: {
			ToolID:   "nmap_ssl_scan",
			Binary:   "nmap",
			BaseArgs: []string{"--script", "ssl-cert,ssl-enum-ciphers", "-p", "443"},
			ArgTemplates: map[string]string{
				"port": "-p {value}",
			},
			Risk:        RiskLow,
			Parser:      ParserGeneric,
			Timeout:     5 * time.Minute,
			Description: "certificate and cipher suite analysis",
		},
		intent.WebDirEnum: {
			ToolID:   "gobuster_dir",
			Binary:   "gobuster",
			BaseArgs: []string{"dir", "-w", "/usr/share/wordlists/dirb/common.txt"},
			ArgTemplates: map[string]string{
				"wordlist":   "-w {value}",
				"extensions": "-x {value}",
			},
			Risk:        RiskMedium,
			Parser:      ParserGobusterDir,
			TargetFlag:  "-u",
			Timeout:     15 * time.Minute,
			Description: "web directory and file enumeration",
		},
		intent.WebVulnScan: {
			ToolID: "nikto_scan",
			Binary: "nikto",
			ArgTemplates: map[string]string{
				"port": "-p {value}",
			},
			Risk:        RiskMedium,
			Parser:      ParserGeneric,
			TargetFlag:  "-h",
			Timeout:     20 * time.Minute,
			Description: "web server vulnerability scan",
		},
		intent.DNSLookup: {
			ToolID: "dig_lookup",
			Binary: "dig",
			ArgTemplates: map[string]string{
				"record_type": "-t {value}",
			},
			Risk:        RiskLow,
			Parser:      ParserDNS,
			Timeout:     30 * time.Second,
			Description: "DNS record lookup",
		},
		intent.WhoisLookup: {
			ToolID:      "whois_lookup",
			Binary:      "whois",
			Risk:        RiskLow,
			Parser:      ParserWhois,
			Timeout:     30 * time.Second,
			Description: "domain registration lookup",
		},
		intent.SubdomainEnum: {
			ToolID:   "gobuster_dns",
			Binary:   "gobuster",
			BaseArgs: []string{"dns", "-w", "/usr/share/wordlists/dnsmap.txt"},
			ArgTemplates: map[string]string{
				"wordlist": "-w {value}",
			},
			Risk:        RiskLow,
			Parser:      ParserGeneric,
			TargetFlag:  "-d",
			Timeout:     15 * time.Minute,
			Description: "subdomain brute force",
		},
		intent.BruteForceSSH: {
			ToolID:   "hydra_ssh",
			Binary:   "hydra",
			BaseArgs: []string{"-t", "4", "ssh"},
			ArgTemplates: map[string]string{
				"username": "-l {value}",
				"userlist": "-L {value}",
				"password": "-p {value}",
				"passlist": "-P {value}",
			},
			Risk:                    RiskHigh,
			CreatesPersistentChange: true,
			Parser:                  ParserGeneric,
			Timeout:                 30 * time.Minute,
			Description:             "SSH credential brute force",
		},
		intent.BruteForceHTTP: {
			ToolID:   "hydra_http",
			Binary:   "hydra",
			BaseArgs: []string{"-t", "4", "http-get"},
			ArgTemplates: map[string]string{
				"username": "-l {value}",
				"passlist": "-P {value}",
			},
			Risk:                    RiskHigh,
			CreatesPersistentChange: true,
			Parser:                  ParserGeneric,
			Timeout:                 30 * time.Minute,
			Description:             "HTTP credential brute force",
		},
		intent.SQLInjection: {
			ToolID:   "sqlmap_test",
			Binary:   "sqlmap",
			BaseArgs: []string{"--batch", "--level", "3"},
			ArgTemplates: map[string]string{
				"data": "--data {value}",
			},
			Risk:                    RiskHigh,
			CreatesPersistentChange: true,
			Parser:                  ParserGeneric,
			TargetFlag:              "-u",
			Timeout:                 30 * time.Minute,
			Description:             "SQL injection testing",
		},
	}

	for kind, def := range defs {
		if err := r.Register(kind, def); err != nil {
			return err
		}
	}
	return nil
}
