// Package sniff picks the Content-Type of a served file
package sniff

import (
	"mime"
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SampleSize is how much of a file is inspected when its name does not
// determine the type
const SampleSize = 4 * 1024

const HTML = "text/html; charset=utf-8"

// htmlTag matches an opening or closing tag of a common HTML element
var htmlTag = regexp.MustCompile(`(?i)<(?:!doctype\s+html|/?(?:html|head|body|title|meta|link|script|style|div|span|p|a|ul|ol|li|table|tr|td|th|h[1-6]|img|br|hr|form|input|button|iframe|section|article|nav|header|footer|main|pre|code|em|strong|b|i)\b[^>]*>)`)

// FromName returns the type implied by the extension of name, or "" when the
// name carries no known extension
func FromName(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	return mime.TypeByExtension(strings.ToLower(ext))
}

// FromContent classifies a prefix of the file. Text that looks like HTML is
// served as HTML even when it lacks a leading doctype.
func FromContent(prefix []byte) string {
	detected := mimetype.Detect(prefix)
	if isText(detected) && LooksLikeHTML(prefix) {
		return HTML
	}
	return detected.String()
}

// LooksLikeHTML reports whether prefix contains an HTML tag
func LooksLikeHTML(prefix []byte) bool {
	return htmlTag.Match(prefix)
}

func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") {
			return true
		}
	}
	return false
}
