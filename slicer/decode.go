package slicer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"

	_ "golang.org/x/image/webp"
)

const (
	// maxImageBytes caps downloads and data URLs.
	maxImageBytes = 20 << 20

	// maxImageSide caps the declared size of a picture, checked before any
	// pixel is decoded.
	maxImageSide = 6000
)

var ErrImageTooLarge = errors.New("image exceeds size limit")

// Decode reads a PNG, JPEG, GIF or WebP picture.
func Decode(r io.Reader) (image.Image, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(raw) > maxImageBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, maxImageBytes)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width > maxImageSide || cfg.Height > maxImageSide {
		return nil, fmt.Errorf("%w: %dx%d pixels", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if b := img.Bounds(); b.Empty() {
		return nil, ErrEmptyImage
	}

	return img, nil
}

// Open loads a picture from an http(s) URL, a base64 data URL or a local
// file path.
func Open(ctx context.Context, client *http.Client, ref string) (image.Image, error) {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return Fetch(ctx, client, ref)
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURL(ref)
	default:
		f, err := os.Open(ref)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		return Decode(f)
	}
}

// Fetch downloads and decodes a picture.
func Fetch(ctx context.Context, client *http.Client, url string) (image.Image, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: %s returned %s", url, resp.Status)
	}

	if resp.ContentLength > maxImageBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, resp.ContentLength)
	}

	return Decode(resp.Body)
}

func decodeDataURL(ref string) (image.Image, error) {
	_, payload, ok := strings.Cut(ref, ",")
	if !ok || !strings.Contains(ref[:len(ref)-len(payload)], ";base64") {
		return nil, fmt.Errorf("decode image: unsupported data URL")
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > maxImageBytes {
		return nil, ErrImageTooLarge
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	return Decode(bytes.NewReader(raw))
}
