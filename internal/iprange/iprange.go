package iprange

import (
	"fmt"
	"regexp"
	"strconv"
)

// Matches IPv4 dotted-quad literals only. Hostnames, IPv6 and anything
// else fall through and are never classified as targets.
var dottedQuad = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)

// Range is an inclusive span of IPv4 addresses, both bounds included.
type Range struct {
	Low  uint64
	High uint64
}

// Parse builds a Range from two dotted-quad bounds. Unlike the runtime
// classification path, configuration bounds are strictly validated:
// octets must be 0-255 and low must not exceed high.
func Parse(low, high string) (Range, error) {
	lo, err := parseStrict(low)
	if err != nil {
		return Range{}, fmt.Errorf("low bound %q: %w", low, err)
	}
	hi, err := parseStrict(high)
	if err != nil {
		return Range{}, fmt.Errorf("high bound %q: %w", high, err)
	}
	if lo > hi {
		return Range{}, fmt.Errorf("low bound %s exceeds high bound %s", low, high)
	}
	return Range{Low: lo, High: hi}, nil
}

func parseStrict(s string) (uint64, error) {
	m := dottedQuad.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("not a dotted-quad address")
	}
	var v uint64
	for _, group := range m[1:] {
		octet, err := strconv.ParseUint(group, 10, 64)
		if err != nil {
			return 0, err
		}
		if octet > 255 {
			return 0, fmt.Errorf("octet %d out of range", octet)
		}
		v = v*256 + octet
	}
	return v, nil
}

// Classifier decides whether a hostname falls inside one of the
// configured target address ranges.
type Classifier struct {
	ranges []Range
}

func NewClassifier(ranges []Range) *Classifier {
	return &Classifier{ranges: ranges}
}

// IsTarget reports whether hostname is an IPv4 literal inside any
// configured range. Octets are not bounds-checked here: an oversized
// inner octet such as "999" carries into the neighboring octet and can
// land inside a range, matching the original arithmetic. The value is
// accumulated in 64 bits so a carry out of the leading octet exceeds
// every 32-bit bound instead of wrapping.
func (c *Classifier) IsTarget(hostname string) bool {
	m := dottedQuad.FindStringSubmatch(hostname)
	if m == nil {
		return false
	}
	var v uint64
	for _, group := range m[1:] {
		octet, _ := strconv.ParseUint(group, 10, 64)
		v = v*256 + octet
	}
	for _, r := range c.ranges {
		if v >= r.Low && v <= r.High {
			return true
		}
	}
	return false
}
