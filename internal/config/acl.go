package config

import (
	"fmt"
	"net"
	"strings"
)

// ACLRule is one "allow <host>" or "deny <host>" clause from the
// drb.acl grammar.
type ACLRule struct {
	Allow bool
	Host  string // literal address, CIDR, or "*" for any
}

// ParseACL parses a sequence of "allow <host>" / "deny <host>"
// clauses, e.g. "allow 127.0.0.1 deny 10.0.0.0/8 allow *".
func ParseACL(spec string) ([]ACLRule, error) {
	fields := strings.Fields(spec)
	var rules []ACLRule
	for i := 0; i < len(fields); i++ {
		switch strings.ToLower(fields[i]) {
		case "allow":
			if i+1 >= len(fields) {
				return nil, fmt.Errorf("allow without host at position %d", i)
			}
			rules = append(rules, ACLRule{Allow: true, Host: fields[i+1]})
			i++
		case "deny":
			if i+1 >= len(fields) {
				return nil, fmt.Errorf("deny without host at position %d", i)
			}
			rules = append(rules, ACLRule{Allow: false, Host: fields[i+1]})
			i++
		default:
			return nil, fmt.Errorf("expected allow|deny, got %q", fields[i])
		}
	}
	return rules, nil
}

// ACL is a compiled, queryable allow/deny list. Rules are evaluated in
// order; the first match wins. No match defaults to deny.
type ACL struct {
	rules []ACLRule
	nets  []*net.IPNet // parallel to rules, nil entry for a literal/ "*" host
}

// CompileACL parses and compiles spec into an ACL ready for Allowed
// checks.
func CompileACL(spec string) (*ACL, error) {
	rules, err := ParseACL(spec)
	if err != nil {
		return nil, err
	}
	a := &ACL{rules: rules, nets: make([]*net.IPNet, len(rules))}
	for i, r := range rules {
		if r.Host == "*" {
			continue
		}
		if _, ipNet, err := net.ParseCIDR(r.Host); err == nil {
			a.nets[i] = ipNet
		}
	}
	return a, nil
}

// Allowed reports whether addr (an IP, or a "host:port" string whose
// port is dropped here) matches an "allow" rule before any "deny" rule.
func (a *ACL) Allowed(addr string) bool {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	ip := net.ParseIP(addr)

	for i, r := range a.rules {
		switch {
		case r.Host == "*":
			return r.Allow
		case a.nets[i] != nil:
			if ip != nil && a.nets[i].Contains(ip) {
				return r.Allow
			}
		default:
			if r.Host == addr {
				return r.Allow
			}
		}
	}
	return false
}
