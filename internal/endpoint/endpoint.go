// Package endpoint expands compact IP/port specification strings into an
// ordered set of bindable IPv4 TCP endpoints.
//
// Grounded on original_source/src/sockparse.rs's parse_ip_input/
// parse_port_input, restated with Go's net/netip and strict error returns
// instead of panics.
package endpoint

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Endpoint is an immutable (IPv4, TCP, address, port) tuple.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

// AddrPort renders the endpoint as a [netip.AddrPort] suitable for
// [net.ListenConfig.Listen].
func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.Addr, e.Port)
}

// String implements [fmt.Stringer].
func (e Endpoint) String() string {
	return e.AddrPort().String()
}

// ParseError describes a malformed IP or port specification.
type ParseError struct {
	// Kind names the grammar form being parsed (e.g. "IP range", "CIDR block").
	Kind string

	// Input is the offending substring.
	Input string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Kind, e.Input, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Kind, e.Input)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// hugeRangeThreshold is the expansion size above which ParseIPs refuses a
// CIDR block unless the caller opts in via allowHugeRange. It is sized to
// cover a /16 and anything larger, which notably includes the 0.0.0.0/0
// boundary case from the testable properties.
const hugeRangeThreshold = 1 << 16

// ParseIPs expands an IP specification using the default policy (huge CIDR
// blocks such as 0.0.0.0/0 are rejected). Use [ParseIPsWithOptions] to allow
// them explicitly.
func ParseIPs(spec string) ([]netip.Addr, error) {
	return ParseIPsWithOptions(spec, false)
}

// ParseIPsWithOptions expands an IP specification into a deduplicated,
// insertion-ordered sequence of IPv4 addresses.
//
// The grammar is selected by the first recognized token, in this order:
// range ("A.B.C.D-E.F.G.H"), CIDR ("A.B.C.D/N"), wildcard (any octet is
// "X", case-insensitive), literal (a single address). This mirrors
// sockparse.rs's branch order (range, then CIDR, then wildcard, else literal).
//
// allowHugeRange must be true to expand a CIDR block of 2^16 addresses or
// more (this covers the 0.0.0.0/0 boundary case); otherwise such a spec
// fails with a *ParseError citing the expansion magnitude.
func ParseIPsWithOptions(spec string, allowHugeRange bool) ([]netip.Addr, error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return nil, &ParseError{Kind: "IP spec", Input: spec, Err: fmt.Errorf("empty input")}
	}

	var addrs []netip.Addr
	var err error

	switch {
	case strings.Contains(trimmed, "-"):
		addrs, err = parseIPRange(trimmed)
	case strings.Contains(trimmed, "/"):
		addrs, err = parseCIDR(trimmed, allowHugeRange)
	case strings.ContainsAny(trimmed, "xX"):
		addrs, err = parseWildcard(trimmed)
	default:
		addrs, err = parseIPLiteral(trimmed)
	}
	if err != nil {
		return nil, err
	}

	return dedupAddrs(addrs), nil
}

func parseIPRange(spec string) ([]netip.Addr, error) {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, &ParseError{Kind: "IP range", Input: spec, Err: fmt.Errorf("expected exactly one '-'")}
	}

	start, err := netip.ParseAddr(strings.TrimSpace(parts[0]))
	if err != nil || !start.Is4() {
		return nil, &ParseError{Kind: "IP range", Input: spec, Err: fmt.Errorf("invalid start address %q", parts[0])}
	}
	end, err := netip.ParseAddr(strings.TrimSpace(parts[1]))
	if err != nil || !end.Is4() {
		return nil, &ParseError{Kind: "IP range", Input: spec, Err: fmt.Errorf("invalid end address %q", parts[1])}
	}

	startU32 := addrToUint32(start)
	endU32 := addrToUint32(end)
	if startU32 > endU32 {
		return nil, &ParseError{Kind: "IP range", Input: spec, Err: fmt.Errorf("start address must be <= end address")}
	}

	addrs := make([]netip.Addr, 0, endU32-startU32+1)
	for v := startU32; ; v++ {
		addrs = append(addrs, uint32ToAddr(v))
		if v == endU32 {
			break
		}
	}
	return addrs, nil
}

func parseCIDR(spec string, allowHugeRange bool) ([]netip.Addr, error) {
	prefix, err := netip.ParsePrefix(spec)
	if err != nil || !prefix.Addr().Is4() {
		return nil, &ParseError{Kind: "CIDR block", Input: spec, Err: fmt.Errorf("invalid IPv4 CIDR")}
	}

	bits := prefix.Bits()
	count := uint64(1) << uint(32-bits)
	if count >= hugeRangeThreshold && !allowHugeRange {
		return nil, &ParseError{
			Kind:  "CIDR block",
			Input: spec,
			Err:   fmt.Errorf("expansion of %d addresses requires --allow-huge-range", count),
		}
	}

	base := addrToUint32(prefix.Masked().Addr())
	addrs := make([]netip.Addr, 0, count)
	for i := uint64(0); i < count; i++ {
		addrs = append(addrs, uint32ToAddr(base+uint32(i)))
	}
	return addrs, nil
}

func parseWildcard(spec string) ([]netip.Addr, error) {
	octetSpecs := strings.Split(spec, ".")
	if len(octetSpecs) != 4 {
		return nil, &ParseError{Kind: "wildcard IP", Input: spec, Err: fmt.Errorf("must have exactly 4 octets")}
	}

	var ranges [4][]int
	for i, raw := range octetSpecs {
		if strings.EqualFold(raw, "x") {
			ranges[i] = make([]int, 256)
			for v := 0; v < 256; v++ {
				ranges[i][v] = v
			}
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 || v > 255 {
			return nil, &ParseError{Kind: "wildcard IP", Input: spec, Err: fmt.Errorf("invalid octet %q", raw)}
		}
		ranges[i] = []int{v}
	}

	var addrs []netip.Addr
	for _, a := range ranges[0] {
		for _, b := range ranges[1] {
			for _, c := range ranges[2] {
				for _, d := range ranges[3] {
					candidate := fmt.Sprintf("%d.%d.%d.%d", a, b, c, d)
					// Suppress addresses whose last octet is 0 unless the
					// raw input explicitly named that exact address.
					if !strings.HasSuffix(candidate, ".0") || strings.Contains(spec, candidate) {
						addrs = append(addrs, netip.MustParseAddr(candidate))
					}
				}
			}
		}
	}
	return addrs, nil
}

func parseIPLiteral(spec string) ([]netip.Addr, error) {
	addr, err := netip.ParseAddr(spec)
	if err != nil || !addr.Is4() {
		return nil, &ParseError{Kind: "IP literal", Input: spec, Err: fmt.Errorf("not a valid IPv4 address")}
	}
	return []netip.Addr{addr}, nil
}

func dedupAddrs(addrs []netip.Addr) []netip.Addr {
	seen := make(map[netip.Addr]struct{}, len(addrs))
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func addrToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func uint32ToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// ParsePorts expands a port specification into an ordered sequence of ports.
// Unlike [ParseIPs], duplicates are preserved in input order: a list such as
// "8080, 8080" yields two identical ports, which is the intended mechanism
// for testing a duplicate-bind scenario end to end.
//
// The grammar is selected by the first recognized token: range ("a-b"),
// list ("p1, p2, ..."), else a single literal port.
func ParsePorts(spec string) ([]uint16, error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return nil, &ParseError{Kind: "port spec", Input: spec, Err: fmt.Errorf("empty input")}
	}

	switch {
	case strings.Contains(trimmed, "-"):
		return parsePortRange(trimmed)
	case strings.Contains(trimmed, ","):
		return parsePortList(trimmed)
	default:
		p, err := parsePort(trimmed)
		if err != nil {
			return nil, err
		}
		return []uint16{p}, nil
	}
}

func parsePortRange(spec string) ([]uint16, error) {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, &ParseError{Kind: "port range", Input: spec, Err: fmt.Errorf("expected exactly one '-'")}
	}
	start, err := parsePort(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, &ParseError{Kind: "port range", Input: spec, Err: err}
	}
	end, err := parsePort(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, &ParseError{Kind: "port range", Input: spec, Err: err}
	}
	if start > end {
		return nil, &ParseError{Kind: "port range", Input: spec, Err: fmt.Errorf("start port must be <= end port")}
	}

	ports := make([]uint16, 0, int(end)-int(start)+1)
	for p := start; ; p++ {
		ports = append(ports, p)
		if p == end {
			break
		}
	}
	return ports, nil
}

func parsePortList(spec string) ([]uint16, error) {
	elems := strings.Split(spec, ",")
	ports := make([]uint16, 0, len(elems))
	for _, raw := range elems {
		p, err := parsePort(strings.TrimSpace(raw))
		if err != nil {
			return nil, &ParseError{Kind: "port list", Input: spec, Err: err}
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if v < 0 || v > 65535 {
		return 0, fmt.Errorf("port %d out of range [0,65535]", v)
	}
	return uint16(v), nil
}

// Compose builds the endpoint set as the Cartesian product of ips (outer
// loop) and ports (inner loop), matching the composition order that
// ParseIPs/ParsePorts produced.
func Compose(ips []netip.Addr, ports []uint16) []Endpoint {
	endpoints := make([]Endpoint, 0, len(ips)*len(ports))
	for _, ip := range ips {
		for _, port := range ports {
			endpoints = append(endpoints, Endpoint{Addr: ip, Port: port})
		}
	}
	return endpoints
}
