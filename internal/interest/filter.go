// Package interest decides whether a clicked link is a download worth
// handing to the daemon.
package interest

import (
	"net/url"
	"path"
	"strings"
)

// CaptureOutput is the output path used for downloads captured from a page click.
const CaptureOutput = "./download-from-browser.bin"

// DefaultExtensions lists archives, disk images, installers and media.
var DefaultExtensions = []string{"zip", "7z", "rar", "tar", "gz", "mp4", "mkv", "iso", "exe", "msi"}

// Gesture is the input that triggered a click.
type Gesture struct {
	CtrlKey bool `json:"ctrlKey"`
	MetaKey bool `json:"metaKey"`
}

// ModifierHeld reports whether control or command was held during the click.
func (g Gesture) ModifierHeld() bool {
	return g.CtrlKey || g.MetaKey
}

// Filter is a pure predicate over links; it is safe for concurrent use.
type Filter struct {
	extensions map[string]struct{}
}

// NewFilter builds a Filter for the given extensions, matched
// case-insensitively with or without a leading dot. No extensions means
// DefaultExtensions.
func NewFilter(extensions ...string) *Filter {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	f := &Filter{extensions: make(map[string]struct{}, len(extensions))}

	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			f.extensions[ext] = struct{}{}
		}
	}

	return f
}

// IsInteresting reports whether rawURL names an allow-listed file and the
// gesture carried a modifier key. Both are required.
//
// The extension is taken from the end of the URL path, so query strings and
// fragments never produce a match.
func (f *Filter) IsInteresting(rawURL string, g Gesture) bool {
	if !g.ModifierHeld() {
		return false
	}

	return f.MatchesURL(rawURL)
}

// MatchesURL reports whether the path of rawURL ends in an allow-listed extension.
func (f *Filter) MatchesURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}

	ext := path.Ext(u.Path)
	if len(ext) < 2 {
		return false
	}

	_, ok := f.extensions[strings.ToLower(ext[1:])]

	return ok
}
