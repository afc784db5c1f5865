package media

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/gabriel-vasile/mimetype"
)

// ErrUnresolved means a referenced file is neither in the manifest nor stored
// under its own name. The card is kept without that asset.
var ErrUnresolved = errors.New("media: unresolved reference")

const octetStream = "application/octet-stream"

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".bmp":  "image/bmp",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".webm": "audio/webm",
	".mp4":  "video/mp4",
}

// Container formats whose sniffed type cannot tell audio-only files from
// video. For these an audio extension names the type.
var containerTypes = []string{"video/webm", "audio/webm", "application/ogg", "audio/ogg", "video/ogg"}

// ContentType infers a media type from the content, falling back to the
// filename extension when sniffing is inconclusive.
func ContentType(name string, data []byte) string {
	byExt, known := extensionTypes[strings.ToLower(filepath.Ext(name))]
	if len(data) > 0 {
		if m := mimetype.Detect(data); m != nil && !m.Is(octetStream) {
			ct, _, _ := strings.Cut(m.String(), ";")
			if known && strings.HasPrefix(byExt, "audio/") && slices.Contains(containerTypes, ct) {
				return byExt
			}
			if ct != "" && !strings.HasPrefix(ct, "text/plain") {
				return ct
			}
		}
	}
	if known {
		return byExt
	}
	return octetStream
}

// Archive is the lazy entry access the resolver needs.
type Archive interface {
	HasEntry(name string) bool
	ReadEntry(name string) ([]byte, error)
}

// Resolver maps referenced filenames to archive entries.
type Resolver struct {
	archive Archive
	keys    map[string]string // original filename -> storage key
}

// NewResolver indexes manifest (storage key -> filename) in reverse. When two
// keys carry the same filename, the lowest key wins.
func NewResolver(manifest map[string]string, archive Archive) *Resolver {
	keys := make(map[string]string, len(manifest))
	for _, key := range slices.Sorted(maps.Keys(manifest)) {
		name := manifest[key]
		if _, dup := keys[name]; !dup {
			keys[name] = key
		}
	}
	return &Resolver{archive: archive, keys: keys}
}

// Resolve loads the asset a reference points at. The manifest is consulted
// first; an entry stored under the reference itself is the fallback.
func (r *Resolver) Resolve(ref string, kind domain.MediaKind) (*domain.MediaAsset, error) {
	entry, ok := r.keys[ref]
	if !ok || !r.archive.HasEntry(entry) {
		entry = ref
	}
	if !r.archive.HasEntry(entry) {
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, ref)
	}
	data, err := r.archive.ReadEntry(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolved, ref, err)
	}
	return &domain.MediaAsset{
		Name:        ref,
		ContentType: ContentType(ref, data),
		Kind:        kind,
		Data:        data,
	}, nil
}

// Extraction is the media attached to one card.
type Extraction struct {
	Image  *domain.MediaAsset
	Audio  *domain.MediaAsset
	Misses []string // references that could not be resolved
}

// Extract attaches the first resolvable image and audio reference of a note.
func (r *Resolver) Extract(fields []string) Extraction {
	refs := References(fields)
	var out Extraction
	out.Image = r.first(refs.Images, domain.MediaImage, &out.Misses)
	out.Audio = r.first(refs.Audio, domain.MediaAudio, &out.Misses)
	return out
}

func (r *Resolver) first(refs []string, kind domain.MediaKind, misses *[]string) *domain.MediaAsset {
	for _, ref := range refs {
		asset, err := r.Resolve(ref, kind)
		if err != nil {
			*misses = append(*misses, ref)
			continue
		}
		return asset
	}
	return nil
}
