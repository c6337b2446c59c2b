package scrape

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// TransformFunc rewrites an extracted string. Transforms are pure: no I/O,
// no access to anything beyond the value and the configured argument.
type TransformFunc func(value, arg string) string

// transformRegistry maps the symbolic names allowed in configuration to
// implementations. Configured source text is never executed; an unknown
// name is rejected when the registry is loaded, before any fetch happens.
var transformRegistry = map[string]TransformFunc{}

// RegisterTransform adds a named transform. Called from init only.
func RegisterTransform(name string, fn TransformFunc) {
	transformRegistry[name] = fn
}

// ApplyTransform runs the named transform over a value.
func ApplyTransform(name, arg, value string) (string, error) {
	fn, ok := transformRegistry[name]
	if !ok {
		return "", fmt.Errorf("unknown transform: %s", name)
	}
	return fn(value, arg), nil
}

// KnownTransform reports whether name is registered; used by config
// validation.
func KnownTransform(name string) bool {
	if name == "" {
		return true
	}
	_, ok := transformRegistry[name]
	return ok
}

var onclickHrefRe = regexp.MustCompile(`['"]([^'"]+)['"]`)

func init() {
	RegisterTransform("trim", func(v, _ string) string {
		return strings.TrimSpace(v)
	})
	RegisterTransform("firstLine", func(v, _ string) string {
		if i := strings.IndexAny(v, "\r\n"); i >= 0 {
			return strings.TrimSpace(v[:i])
		}
		return strings.TrimSpace(v)
	})
	RegisterTransform("stripPrefix", func(v, arg string) string {
		return strings.TrimSpace(strings.TrimPrefix(v, arg))
	})
	RegisterTransform("stripSuffix", func(v, arg string) string {
		return strings.TrimSpace(strings.TrimSuffix(v, arg))
	})
	RegisterTransform("digitsOnly", func(v, _ string) string {
		var b strings.Builder
		for _, r := range v {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		return b.String()
	})
	// joinParts glues the multi-value parts of an extraction together with
	// the configured argument (default: empty string).
	RegisterTransform("joinParts", func(v, arg string) string {
		return strings.Join(strings.Split(v, Separator), arg)
	})
	// urlEncodeJoin percent-encodes each multi-value part and concatenates
	// them, the shape the old per-site link-assembly snippets produced.
	RegisterTransform("urlEncodeJoin", func(v, _ string) string {
		parts := strings.Split(v, Separator)
		for i, p := range parts {
			parts[i] = url.QueryEscape(p)
		}
		return strings.Join(parts, "")
	})
	// onclickHref pulls the first quoted token out of an onclick value,
	// e.g. "location.href='view.do?id=3'" or "fnView('3','BID')".
	RegisterTransform("onclickHref", func(v, _ string) string {
		m := onclickHrefRe.FindStringSubmatch(v)
		if m == nil {
			return ""
		}
		return m[1]
	})
	// prependBase puts a configured URL prefix in front of the value, for
	// sites whose rows carry only an identifier.
	RegisterTransform("prependBase", func(v, arg string) string {
		if v == "" {
			return ""
		}
		return arg + v
	})
}
