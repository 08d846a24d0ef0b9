package installer

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"reprounzip/internal/pack"
)

// OSReleasePath describes the running distribution.
var OSReleasePath = "/etc/os-release"

// ReadOSRelease parses an os-release file into its key/value pairs.
func ReadOSRelease(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if uq, err := strconv.Unquote(v); err == nil {
			v = uq
		} else {
			v = strings.Trim(v, `'"`)
		}
		out[k] = v
	}
	return out, sc.Err()
}

// HostDistribution is the lowercased ID of the running distribution, or ""
// when it cannot be determined.
func HostDistribution() string {
	rel, err := ReadOSRelease(OSReleasePath)
	if err != nil {
		return ""
	}
	return strings.ToLower(rel["ID"])
}

// Compatible reports whether packages of cfg can be installed here.
func Compatible(cfg *pack.Config, host string) error {
	if host == "" {
		return fmt.Errorf("this machine is not running a known Linux distribution")
	}
	if orig := cfg.DistributionName(); orig != host {
		return fmt.Errorf("different distributions, then: %s, now: %s", orig, host)
	}
	return nil
}
