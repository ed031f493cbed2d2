// internal/useragent/useragent.go
// Package useragent extracts {os_name, os_version} from a client's
// last_seen_user_agent string, feeding the `authorize_flow` push's
// device_os_name/device_os_version fields (§4.5). No corpus file parses user
// agents; this is a small, pure regexp-based parser over the handful of
// client platforms this system's clients run on. See DESIGN.md for why this
// stays on regexp/stdlib rather than a third-party UA-parsing library.
package useragent

import "regexp"

var patterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"iOS", regexp.MustCompile(`iOS[/ ]([\d._]+)`)},
	{"macOS", regexp.MustCompile(`Mac OS X[/ ]([\d._]+)`)},
	{"Windows", regexp.MustCompile(`Windows NT ([\d.]+)`)},
	{"Android", regexp.MustCompile(`Android[/ ]([\d.]+)`)},
	{"Linux", regexp.MustCompile(`Linux[/ ]?([\d.]*)`)},
}

// Parse returns the best-effort OS name and version found in ua. Both are
// empty if nothing recognizable matched.
func Parse(ua string) (osName, osVersion string) {
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(ua); m != nil {
			return p.name, m[1]
		}
	}
	return "", ""
}
