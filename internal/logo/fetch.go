package logo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// MaxLogoBytes bounds every logo read, whatever its source.
const MaxLogoBytes = 5 << 20

var dataURLRe = regexp.MustCompile(`^data:image/[\w.+-]+;base64,(.+)$`)

// Resolver maps a public URL back to an object of a store.
type Resolver interface {
	Store
	ObjectFromURL(url string) (string, bool)
}

// ErrUnsupportedURL is returned for logo URLs that are neither data URLs
// nor objects of the configured store. Arbitrary hosts are never dialled.
var ErrUnsupportedURL = errors.New("unsupported logo url")

// Fetcher loads logo bytes from data URLs or the configured store.
type Fetcher struct {
	store Resolver
}

// NewFetcher builds a Fetcher. store may be nil.
func NewFetcher(store Resolver) *Fetcher {
	return &Fetcher{store: store}
}

func (f *Fetcher) Load(ctx context.Context, url string) ([]byte, error) {
	url = strings.TrimSpace(url)
	if m := dataURLRe.FindStringSubmatch(url); m != nil {
		raw, err := base64.StdEncoding.DecodeString(m[1])
		if err != nil {
			return nil, fmt.Errorf("decode data url: %w", err)
		}
		if len(raw) > MaxLogoBytes {
			return nil, errTooLarge
		}
		return raw, nil
	}

	if f.store != nil {
		if object, ok := f.store.ObjectFromURL(url); ok {
			rc, _, err := f.store.Open(ctx, object)
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return readLimited(rc)
		}
	}
	return nil, ErrUnsupportedURL
}

var errTooLarge = errors.New("logo exceeds size limit")

func readLimited(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxLogoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read logo: %w", err)
	}
	if len(raw) > MaxLogoBytes {
		return nil, errTooLarge
	}
	return raw, nil
}
