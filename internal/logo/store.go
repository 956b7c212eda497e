// Package logo stores uploaded company logos and loads them back for
// report rendering.
package logo

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Store persists logo objects under generated names.
type Store interface {
	// Put writes a new object and returns its public URL. Writing an existing
	// name fails with a conflict unless the store allows overwrites.
	Put(ctx context.Context, object, contentType string, r io.Reader) (string, error)
	// Open returns the object content and its content type.
	Open(ctx context.Context, object string) (io.ReadCloser, string, error)
	// URL returns the public URL of object.
	URL(object string) string
}

var (
	whitespace = regexp.MustCompile(`\s+`)
	objectRe   = regexp.MustCompile(`^[a-z0-9_.-]+$`)
)

// Slug lowercases owner, joins whitespace runs with "_" and drops characters
// that are not safe in an object name.
func Slug(owner string) string {
	s := whitespace.ReplaceAllString(strings.TrimSpace(owner), "_")
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '_' || r == '-':
			return r
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			return r
		default:
			return -1
		}
	}, s)
}

// ObjectName builds <slug>-logo_<unix-millis>.<ext>. ext is taken from the
// uploaded filename, without the dot.
func ObjectName(owner, filename string, now time.Time) string {
	slug := Slug(owner)
	if slug == "" {
		slug = "company"
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	ext = Slug(ext)
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("%s-logo_%d.%s", slug, now.UnixMilli(), ext)
}

// ValidObject reports whether name is a flat object name produced by
// ObjectName or an equivalent.
func ValidObject(name string) bool {
	return objectRe.MatchString(name) && !strings.HasPrefix(name, ".") && !strings.Contains(name, "..")
}
