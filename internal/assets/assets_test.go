package assets

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/saucemap/internal/httputil"
	"github.com/banshee-data/saucemap/internal/testutil"
	"github.com/banshee-data/saucemap/internal/world"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBackground_DecodesWebP(t *testing.T) {
	t.Parallel()
	data, err := os.ReadFile(filepath.Join("testdata", "world16.webp"))
	require.NoError(t, err)

	mock := httputil.NewMockHTTPClient().Handle("/maps/world1-v2.webp", http.StatusOK, data)
	src := New("https://cdn.example.com/", mock)

	img, err := src.Background(context.Background(), testutil.WatopiaMeta(), "default")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
	assert.Equal(t, "https://cdn.example.com/maps/world1-v2.webp", mock.GetRequest(0).URL.String())
}

func TestBackground_StyleAndCache(t *testing.T) {
	t.Parallel()
	mock := httputil.NewMockHTTPClient().
		Handle("/maps/world2.webp", http.StatusOK, pngBytes(t, 8, 4)).
		Handle("/maps/world2-neon.webp", http.StatusOK, pngBytes(t, 2, 2))
	src := New("https://cdn.example.com", mock)
	ctx := context.Background()
	meta := testutil.RichmondMeta()

	img, err := src.Background(ctx, meta, "default")
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	neon, err := src.Background(ctx, meta, "neon")
	require.NoError(t, err)
	assert.Equal(t, 2, neon.Bounds().Dx())

	again, err := src.Background(ctx, meta, "default")
	require.NoError(t, err)
	assert.Same(t, img, again)
	assert.Equal(t, 2, mock.RequestCount(), "cached background must not be refetched")
}

func TestBackground_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()
	mock := httputil.NewMockHTTPClient()
	body := pngBytes(t, 1, 1)
	for i := 1; i <= 3; i++ {
		mock.Handle("/maps/world"+string(rune('0'+i))+".webp", http.StatusOK, body)
	}
	src := New("https://cdn.example.com", mock)
	src.size = 2
	ctx := context.Background()
	meta := func(id int) *world.Meta { return &world.Meta{WorldID: id} }

	for _, id := range []int{1, 2, 1, 3} {
		_, err := src.Background(ctx, meta(id), "")
		require.NoError(t, err)
	}
	// 1 was touched after 2, so 2 is evicted.
	assert.Equal(t, 3, mock.RequestCount())
	_, err := src.Background(ctx, meta(1), "")
	require.NoError(t, err)
	assert.Equal(t, 3, mock.RequestCount())
	_, err = src.Background(ctx, meta(2), "")
	require.NoError(t, err)
	assert.Equal(t, 4, mock.RequestCount())
}

func TestBackground_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing asset", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockHTTPClient().AddResponse(http.StatusNotFound, "")
		_, err := New("https://cdn.example.com", mock).Background(ctx, testutil.RichmondMeta(), "")
		assert.ErrorIs(t, err, world.ErrNotFound)
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockHTTPClient().AddResponse(http.StatusInternalServerError, "")
		_, err := New("https://cdn.example.com", mock).Background(ctx, testutil.RichmondMeta(), "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, world.ErrNotFound)
		assert.Contains(t, err.Error(), "failed to fetch background world2.webp")
	})

	t.Run("undecodable", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, "RIFF....WEBPjunk")
		_, err := New("https://cdn.example.com", mock).Background(ctx, testutil.RichmondMeta(), "")
		assert.ErrorContains(t, err, "failed to decode background")
	})
}
