package command

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	sentraerrors "sentra/pkg/errors"
)

// Shell metacharacters rejected in targets and arguments.
const dangerousChars = ";&|`$(){}<>\\'\"\n\r\x00"

var (
	hostnamePattern = regexp.MustCompile(
		`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*\.[a-zA-Z]{2,}$`)
	urlPattern = regexp.MustCompile(
		`^https?://[a-zA-Z0-9]([a-zA-Z0-9.-]{0,253})?(:\d{1,5})?(/[^\s]*)?$`)
	portListPattern = regexp.MustCompile(`^\d{1,5}(-\d{1,5})?(,\d{1,5}(-\d{1,5})?)*$`)
)

// ValidateTarget accepts an IPv4 address (with optional CIDR), an IPv6
// address, an RFC 1123 hostname, or an http(s) URL. Anything carrying
// shell metacharacters is rejected before format checks run.
func ValidateTarget(target string) error {
	if target == "" {
		return fmt.Errorf("%w: empty target", sentraerrors.ErrInvalidTarget)
	}
	if strings.ContainsAny(target, dangerousChars) || strings.ContainsAny(target, " \t") {
		return fmt.Errorf("%w: %q contains forbidden characters", sentraerrors.ErrInvalidTarget, target)
	}

	if ip := net.ParseIP(target); ip != nil {
		return nil
	}
	if _, _, err := net.ParseCIDR(target); err == nil {
		return nil
	}
	if target == "localhost" {
		return nil
	}
	if hostnamePattern.MatchString(target) && len(target) <= 255 {
		return nil
	}
	if urlPattern.MatchString(target) {
		return nil
	}

	return fmt.Errorf("%w: %q is not an IP, CIDR range, hostname or URL", sentraerrors.ErrInvalidTarget, target)
}

// ValidatePortRange accepts "80", "22,80,443", "1-1000", mixes of the
// two, and "-" for all ports. Port 0 and ports above 65535 are rejected.
func ValidatePortRange(ports string) error {
	if ports == "-" {
		return nil
	}
	if !portListPattern.MatchString(ports) {
		return sentraerrors.NewCommandBuildError("invalid port specification %q", ports)
	}
	for _, part := range strings.Split(ports, ",") {
		bounds := strings.SplitN(part, "-", 2)
		low, err := strconv.Atoi(bounds[0])
		if err != nil {
			return sentraerrors.NewCommandBuildError("invalid port %q", bounds[0])
		}
		high := low
		if len(bounds) == 2 {
			if high, err = strconv.Atoi(bounds[1]); err != nil {
				return sentraerrors.NewCommandBuildError("invalid port %q", bounds[1])
			}
		}
		if low < 1 || high > 65535 {
			return sentraerrors.NewCommandBuildError("port out of range in %q", part)
		}
		if low > high {
			return sentraerrors.NewCommandBuildError("descending port range %q", part)
		}
	}
	return nil
}

// validateArgument rejects control characters, shell metacharacters and
// oversized arguments.
func validateArgument(arg string) error {
	if arg == "" {
		return sentraerrors.NewCommandBuildError("empty argument")
	}
	if len(arg) > maxArgBytes {
		return sentraerrors.NewCommandBuildError("argument exceeds %d bytes", maxArgBytes)
	}
	if strings.ContainsAny(arg, dangerousChars) {
		return sentraerrors.NewCommandBuildError("argument %q contains shell metacharacters", arg)
	}
	for _, r := range arg {
		if r < 0x20 && r != 0 { // 0 already caught above
			return sentraerrors.NewCommandBuildError("argument contains control characters")
		}
	}
	return nil
}
