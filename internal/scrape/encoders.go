package scrape

import (
	"net/url"
	"strings"
)

// EncoderFunc turns a raw attachment reference extracted from a detail page
// into a usable download URL. Every organization encodes these differently;
// the scheme is picked per organization by name in DetailConfig.
type EncoderFunc func(raw string) string

var encoderRegistry = map[string]EncoderFunc{}

// RegisterEncoder adds a named attachment URL encoder. Called from init.
func RegisterEncoder(name string, fn EncoderFunc) {
	encoderRegistry[name] = fn
}

// KnownEncoder reports whether name is registered; used by config
// validation.
func KnownEncoder(name string) bool {
	if name == "" {
		return true
	}
	_, ok := encoderRegistry[name]
	return ok
}

// EncodeAttachmentURL applies the named encoder to each multi-value part of
// an extracted file_url field. An empty encoder name passes the value
// through untouched.
func EncodeAttachmentURL(name, raw string) string {
	if name == "" || raw == "" {
		return raw
	}
	fn, ok := encoderRegistry[name]
	if !ok {
		return raw
	}
	parts := strings.Split(raw, Separator)
	for i, p := range parts {
		parts[i] = fn(p)
	}
	return strings.Join(parts, Separator)
}

// encodeQueryTail percent-encodes everything after the last "=" and leaves
// the rest of the URL alone, for sites passing Korean file names as a
// query value.
func encodeQueryTail(raw string) string {
	i := strings.LastIndex(raw, "=")
	if i < 0 {
		return raw
	}
	return raw[:i+1] + url.QueryEscape(raw[i+1:])
}

// encodePlusPath produces the form-encoded variant some download servlets
// expect: spaces become "+", slashes become "%2F".
func encodePlusPath(raw string) string {
	v := url.PathEscape(raw)
	return strings.ReplaceAll(v, "%20", "+")
}

// encodeTokenTriple handles the quoted-argument scheme where the extracted
// value is a javascript call like fnDown('grp','123','파일.hwp', ...): the
// 1st, 3rd and 5th quote-delimited tokens form the download path.
func encodeTokenTriple(raw string) string {
	parts := strings.Split(raw, "'")
	if len(parts) < 6 {
		return raw
	}
	segs := []string{parts[1], parts[3], parts[5]}
	for i, s := range segs {
		segs[i] = url.QueryEscape(s)
	}
	return strings.Join(segs, "/")
}

func init() {
	RegisterEncoder("query", encodeQueryTail)
	RegisterEncoder("plusPath", encodePlusPath)
	RegisterEncoder("tokenTriple", encodeTokenTriple)
}
