package tile

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/afero"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// Fetcher loads the image for a logical tile address.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (image.Image, error)
}

// FileFetcher reads tiles from a site root on a filesystem. Registry
// paths are resolved relative to the root.
type FileFetcher struct {
	fs   afero.Fs
	root string
}

// NewFileFetcher creates a fetcher reading below root.
func NewFileFetcher(fs afero.Fs, root string) *FileFetcher {
	return &FileFetcher{fs: fs, root: root}
}

// Fetch reads and decodes a tile file
func (f *FileFetcher) Fetch(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(f.fs, filepath.Join(f.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, err
	}
	return DecodeImage(data)
}

// HTTPFetcher downloads tiles from a web map server
type HTTPFetcher struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewHTTPFetcher creates a fetcher resolving tile paths against baseURL.
func NewHTTPFetcher(baseURL, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:   strings.TrimSuffix(baseURL, "/") + "/",
		userAgent: userAgent,
	}
}

// Fetch downloads and decodes a tile
func (h *HTTPFetcher) Fetch(ctx context.Context, path string) (image.Image, error) {
	data, err := h.DownloadTile(ctx, h.baseURL+strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, err
	}
	return DecodeImage(data)
}

// DownloadTile downloads a tile from the given URL
func (h *HTTPFetcher) DownloadTile(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// DecodeImage detects image format and decodes
func DecodeImage(data []byte) (image.Image, error) {
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x89, 0x50, 0x4E, 0x47}):
		return png.Decode(bytes.NewReader(data))
	case len(data) >= 2 && bytes.Equal(data[:2], []byte{0xFF, 0xD8}):
		return jpeg.Decode(bytes.NewReader(data))
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return webp.Decode(bytes.NewReader(data))
	}
	return nil, fmt.Errorf("%w: unrecognized tile image", ErrUnknownFormat)
}

// ParseFormat maps a format name to one of the Format constants.
func ParseFormat(name string) (int, error) {
	switch strings.ToLower(name) {
	case "", "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
}

// ContentType returns the MIME type of an output format.
func ContentType(format int) string {
	switch format {
	case FormatJPEG:
		return "image/jpeg"
	case FormatTIFF:
		return "image/tiff"
	default:
		return "image/png"
	}
}

// Encode writes img in the given output format
func Encode(w io.Writer, img image.Image, format int) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("%w: %d", ErrUnknownFormat, format)
}

// ParseColor parses a CSS hex color such as "#000" or "#1e90ff".
func ParseColor(s string) (color.RGBA, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid fill color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}, nil
}
