package runner

import (
	"regexp"
)

// Interactive prompt detection. Patterns are anchored at end of line and
// checked against a bounded suffix so long output lines cannot trigger
// quadratic regexp scans.
const promptLookback = 256

var promptPatterns = []struct {
	kind    string
	pattern *regexp.Regexp
}{
	{"yes_no", regexp.MustCompile(`(?i)\[y/n\]:?\s*$`)},
	{"yes_no", regexp.MustCompile(`(?i)\(y(es)?/no?\)\??:?\s*$`)},
	{"password", regexp.MustCompile(`(?i)passwor[dt][^a-z]*:\s*$`)},
	{"password", regexp.MustCompile(`(?i)passphrase.*:\s*$`)},
	{"free_text", regexp.MustCompile(`(?i)press enter to continue\.?\s*$`)},
}

type promptDetector struct{}

func newPromptDetector() *promptDetector {
	return &promptDetector{}
}

// Detect reports whether line ends in a known interactive prompt and
// which input kind it asks for.
func (d *promptDetector) Detect(line string) (string, bool) {
	if len(line) > promptLookback {
		line = line[len(line)-promptLookback:]
	}
	for _, candidate := range promptPatterns {
		if candidate.pattern.MatchString(line) {
			return candidate.kind, true
		}
	}
	return "", false
}
