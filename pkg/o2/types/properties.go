package types

import "strings"

// Properties is a service's optional ";k1:v1;k2:v2;...;" attribute string.
// ';', ':' and '\' are escaped with a leading '\'.
type Properties map[string]string

// ParseProperties parses the wire form "k1:v1;k2:v2;" (surrounding ';' are
// optional on input) into a Properties map.
func ParseProperties(s string) Properties {
	props := Properties{}
	s = strings.TrimPrefix(s, ";")
	s = strings.TrimSuffix(s, ";")
	if s == "" {
		return props
	}
	for _, pair := range splitUnescaped(s, ';') {
		kv := splitUnescaped(pair, ':')
		if len(kv) != 2 {
			continue
		}
		props[unescapeProp(kv[0])] = unescapeProp(kv[1])
	}
	return props
}

// String renders Properties back into the wire form, always leading and
// trailing with ';' (or empty string when there are no properties).
func (p Properties) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte(';')
	for k, v := range p {
		b.WriteString(escapeProp(k))
		b.WriteByte(':')
		b.WriteString(escapeProp(v))
		b.WriteByte(';')
	}
	return b.String()
}

func escapeProp(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ';', ':', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func unescapeProp(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitUnescaped splits s on sep, treating a sep preceded by an odd number
// of consecutive backslashes as escaped rather than a delimiter.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	start := 0
	backslashes := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			backslashes++
		case sep:
			if backslashes%2 == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
			backslashes = 0
		default:
			backslashes = 0
		}
	}
	parts = append(parts, s[start:])
	return parts
}
