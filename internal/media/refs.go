// Package media resolves the images and audio referenced by note fields and
// hands them out through released-on-every-path handles.
package media

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var soundRe = regexp.MustCompile(`(?i)\[sound:([^\]]+)\]`)

// Refs are the media filenames referenced by a note, in document order.
type Refs struct {
	Images []string
	Audio  []string
}

// References collects image and audio references across all fields.
// Names are URL-unescaped when they decode cleanly and deduplicated.
func References(fields []string) Refs {
	var refs Refs
	seenImg := map[string]bool{}
	seenAudio := map[string]bool{}
	add := func(list *[]string, seen map[string]bool, raw string) {
		name := unescape(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		*list = append(*list, name)
	}

	for _, field := range fields {
		if field == "" {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(field))
		if err == nil {
			doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
				add(&refs.Images, seenImg, s.AttrOr("src", ""))
			})
			doc.Find("audio[src], source[src]").Each(func(_ int, s *goquery.Selection) {
				add(&refs.Audio, seenAudio, s.AttrOr("src", ""))
			})
		}
		for _, m := range soundRe.FindAllStringSubmatch(field, -1) {
			add(&refs.Audio, seenAudio, m[1])
		}
	}
	return refs
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}
