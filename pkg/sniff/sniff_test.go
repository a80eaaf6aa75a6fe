package sniff_test

import (
	"testing"

	"github.com/nearfs/gateway/pkg/sniff"
	"github.com/stretchr/testify/require"
)

func TestFromName(t *testing.T) {
	testCases := []struct {
		name     string
		expected string
	}{
		{name: "dir/file.css", expected: "text/css"},
		{name: "index.HTML", expected: "text/html"},
		{name: "logo.png", expected: "image/png"},
		{name: "noextension", expected: ""},
		{name: "weird.nearfsunknown", expected: ""},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			contentType := sniff.FromName(testCase.name)
			if testCase.expected == "" {
				require.Empty(t, contentType)
				return
			}
			require.Contains(t, contentType, testCase.expected)
		})
	}
}

func TestFromContent(t *testing.T) {
	testCases := []struct {
		name     string
		prefix   []byte
		expected string
	}{
		{name: "plain text", prefix: []byte("Hello, World\n"), expected: "text/plain"},
		{name: "html document", prefix: []byte("<!DOCTYPE html><html><body>hi</body></html>"), expected: "text/html"},
		{name: "html fragment in text", prefix: []byte("some intro text\n<div class=\"x\">hi</div>\n"), expected: "text/html"},
		{name: "png", prefix: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), expected: "image/png"},
		{name: "binary", prefix: []byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x00, 0x03}, expected: "application/octet-stream"},
		{name: "binary with tag", prefix: append([]byte{0x00, 0x01, 0x02, 0xff}, []byte("<div>")...), expected: "application/octet-stream"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Contains(t, sniff.FromContent(testCase.prefix), testCase.expected)
		})
	}
}

func TestLooksLikeHTML(t *testing.T) {
	require.True(t, sniff.LooksLikeHTML([]byte("<P>para")))
	require.True(t, sniff.LooksLikeHTML([]byte("text </body>")))
	require.False(t, sniff.LooksLikeHTML([]byte("a < b and c > d")))
	require.False(t, sniff.LooksLikeHTML([]byte("<notatag>")))
}
