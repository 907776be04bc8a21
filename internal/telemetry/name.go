package telemetry

import (
	"sort"
	"strings"
)

// ParseMetricName splits `name{key="value",...}` into the base name and its
// inline attributes. A name without braces has no attributes.
func ParseMetricName(full string) (string, map[string]string) {
	attrs := make(map[string]string)
	open := strings.IndexByte(full, '{')
	if open < 0 || !strings.HasSuffix(full, "}") {
		return strings.TrimSpace(full), attrs
	}

	base := strings.TrimSpace(full[:open])
	body := full[open+1 : len(full)-1]

	for len(body) > 0 {
		body = strings.TrimLeft(body, " ,")
		eq := strings.IndexByte(body, '=')
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(body[:eq])
		body = strings.TrimLeft(body[eq+1:], " ")

		var value string
		if strings.HasPrefix(body, `"`) {
			value, body = readQuoted(body[1:])
		} else {
			end := strings.IndexByte(body, ',')
			if end < 0 {
				end = len(body)
			}
			value, body = strings.TrimSpace(body[:end]), body[end:]
		}
		if key != "" {
			attrs[key] = value
		}
	}
	return base, attrs
}

func readQuoted(s string) (string, string) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), s[i+1:]
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), ""
}

// MetricName renders base and attributes in canonical form, keys sorted.
func MetricName(base string, attrs map[string]string) string {
	if len(attrs) == 0 {
		return base
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(strings.ReplaceAll(attrs[k], `"`, `\"`))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}
