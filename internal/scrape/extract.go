package scrape

import (
	"bytes"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Separator joins the values of a multi-node match into a single field.
// It is reserved: no upstream site emits it, so splitting is lossless.
const Separator = "|-"

// Extraction targets supported by a FieldRule. "attr:<name>" reads the
// named attribute instead.
const (
	TargetText      = "text"      // all text nodes, trimmed and space-joined
	TargetRawHTML   = "html"      // the matched node's own markup
	TargetInnerHTML = "innerhtml" // children only, wrapped in a neutral <div>
	TargetFirst     = "first"     // first matching node's text only
)

const attrPrefix = "attr:"

// Evaluate applies one field rule to a document or row node and returns the
// extracted string. Failure is silent: a locator that matches nothing, or
// does not compile, yields "". Absence of data is a normal state here, not
// an error; row validation downstream decides what is fatal.
func Evaluate(node *html.Node, rule FieldRule) string {
	if node == nil || strings.TrimSpace(rule.Locator) == "" {
		return ""
	}

	expr, err := xpath.Compile(rule.Locator)
	if err != nil {
		return ""
	}
	matches := htmlquery.QuerySelectorAll(node, expr)
	if len(matches) == 0 {
		return ""
	}

	raw := extractTarget(matches, rule.Target)
	if raw == "" {
		return ""
	}
	if rule.Transform != "" {
		out, err := ApplyTransform(rule.Transform, rule.TransformArg, raw)
		if err != nil {
			return ""
		}
		raw = out
	}
	return sanitizeUTF8(raw)
}

func extractTarget(matches []*html.Node, target string) string {
	switch {
	case target == "" || target == TargetText:
		var parts []string
		for _, n := range matches {
			if t := nodeText(n); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, Separator)

	case target == TargetFirst:
		return nodeText(matches[0])

	case target == TargetRawHTML:
		return renderNode(matches[0])

	case target == TargetInnerHTML:
		var buf bytes.Buffer
		buf.WriteString("<div>")
		for c := matches[0].FirstChild; c != nil; c = c.NextSibling {
			buf.WriteString(renderNode(c))
		}
		buf.WriteString("</div>")
		return buf.String()

	case strings.HasPrefix(target, attrPrefix):
		name := strings.TrimPrefix(target, attrPrefix)
		var parts []string
		for _, n := range matches {
			if v := strings.TrimSpace(htmlquery.SelectAttr(n, name)); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, Separator)
	}

	return ""
}

// nodeText concatenates all descendant text nodes, each trimmed, joined by
// single spaces.
func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return normalizeSpace(strings.Join(parts, " "))
}

// renderNode serializes exactly one node's markup, closing at its own end
// tag. Trailing siblings are never included.
func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// ValidTarget reports whether a configured target string is recognized.
func ValidTarget(target string) bool {
	switch target {
	case "", TargetText, TargetRawHTML, TargetInnerHTML, TargetFirst:
		return true
	}
	return strings.HasPrefix(target, attrPrefix) && len(target) > len(attrPrefix)
}
