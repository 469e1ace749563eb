package cql

import "strings"

const oidURNPrefix = "urn:oid:"

// ExtractValueSets returns the declared ValueSet names mapped to their OIDs.
// Declarations whose value cannot be reduced to an OID are skipped.
func ExtractValueSets(text string) *Refs {
	refs := NewRefs()
	for _, d := range Scan(text) {
		if d.Kind != ValueSetKind {
			continue
		}
		oid, ok := NormalizeOID(d.Value)
		if !ok {
			continue
		}
		refs.Set(d.Name, oid)
	}
	return refs
}

// ExtractCodeSystems returns the declared CodeSystem names mapped to their
// URLs, verbatim.
func ExtractCodeSystems(text string) *Refs {
	refs := NewRefs()
	for _, d := range Scan(text) {
		if d.Kind == CodeSystemKind {
			refs.Set(d.Name, strings.TrimSpace(d.Value))
		}
	}
	return refs
}

// NormalizeOID reduces a ValueSet reference to its OID. Accepted forms are
// `urn:oid:<oid>`, a URL containing `ValueSet/<oid>` and a bare OID. A
// trailing `|version` is dropped.
func NormalizeOID(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if i := strings.IndexByte(v, '|'); i >= 0 {
		v = v[:i]
	}

	switch {
	case len(v) >= len(oidURNPrefix) && strings.EqualFold(v[:len(oidURNPrefix)], oidURNPrefix):
		v = v[len(oidURNPrefix):]
	case strings.Contains(v, "ValueSet/"):
		v = v[strings.LastIndex(v, "ValueSet/")+len("ValueSet/"):]
		if i := strings.IndexAny(v, "/?#"); i >= 0 {
			v = v[:i]
		}
	}

	if !IsOID(v) {
		return "", false
	}
	return v, true
}

// IsOID reports whether s is a dotted sequence of decimal arcs.
func IsOID(s string) bool {
	if s == "" {
		return false
	}
	for _, arc := range strings.Split(s, ".") {
		if arc == "" {
			return false
		}
		for _, c := range arc {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}
