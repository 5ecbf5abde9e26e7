// Package assets fetches and decodes world background rasters from the map
// asset host.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"strings"
	"sync"

	_ "golang.org/x/image/webp"

	"github.com/banshee-data/saucemap/internal/httputil"
	"github.com/banshee-data/saucemap/internal/monitoring"
	"github.com/banshee-data/saucemap/internal/world"
)

// DefaultCacheSize is how many decoded backgrounds a Source keeps.
const DefaultCacheSize = 4

// Source implements world.ImageSource over an HTTP asset host. Decoded
// images are kept in a small least recently used cache keyed by asset name.
type Source struct {
	baseURL string
	client  httputil.HTTPClient

	mu    sync.Mutex
	cache map[string]image.Image
	order []string
	size  int
}

// New returns a Source fetching from baseURL with client. A nil client uses
// httputil.NewStandardClient.
func New(baseURL string, client httputil.HTTPClient) *Source {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &Source{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		cache:   make(map[string]image.Image),
		size:    DefaultCacheSize,
	}
}

// URL returns the address of the background asset for meta and style.
func (s *Source) URL(meta *world.Meta, style string) string {
	return s.baseURL + "/maps/" + meta.BackgroundAsset(style)
}

// Background implements world.ImageSource.
func (s *Source) Background(ctx context.Context, meta *world.Meta, style string) (image.Image, error) {
	name := meta.BackgroundAsset(style)
	if img := s.cached(name); img != nil {
		return img, nil
	}

	url := s.URL(meta, style)
	body, err := httputil.Fetch(ctx, s.client, url)
	if err != nil {
		if httputil.IsNotFound(err) {
			return nil, fmt.Errorf("background %s: %w", name, world.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch background %s: %w", name, err)
	}
	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode background %s: %w", name, err)
	}
	b := img.Bounds()
	monitoring.Diagf("background %s: %s %dx%d (%d bytes)", name, format, b.Dx(), b.Dy(), len(body))

	s.store(name, img)
	return img, nil
}

func (s *Source) cached(name string) image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.cache[name]
	if !ok {
		return nil
	}
	s.touch(name)
	return img
}

func (s *Source) store(name string, img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[name]; ok {
		s.touch(name)
		return
	}
	s.cache[name] = img
	s.order = append(s.order, name)
	for len(s.order) > s.size {
		delete(s.cache, s.order[0])
		s.order = s.order[1:]
	}
}

// touch moves name to the most recently used end. Caller holds mu.
func (s *Source) touch(name string) {
	for i, n := range s.order {
		if n == name {
			s.order = append(append(s.order[:i:i], s.order[i+1:]...), name)
			return
		}
	}
}
