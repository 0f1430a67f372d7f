package slicer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDifficulty(t *testing.T) {
	for in, want := range map[string]Difficulty{
		"":       Normal,
		"easy":   Easy,
		" Hard ": Hard,
		"NORMAL": Normal,
	} {
		got, err := ParseDifficulty(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDifficulty("nightmare")
	assert.ErrorIs(t, err, ErrUnknownDifficulty)
}

func TestGridFor(t *testing.T) {
	for _, tc := range []struct {
		name       string
		w, h       int
		d          Difficulty
		cols, rows int
		size       float64
	}{
		{"landscape", 640, 480, Normal, 8, 6, 60},
		{"portrait", 480, 640, Normal, 6, 8, 60},
		{"square easy", 100, 100, Easy, 4, 4, 120},
		{"square hard", 300, 300, Hard, 8, 8, 60},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g, err := GridFor(tc.w, tc.h, tc.d)
			require.NoError(t, err)
			assert.Equal(t, tc.cols, g.Cols)
			assert.Equal(t, tc.rows, g.Rows)
			assert.Equal(t, tc.size, g.PieceSize)
		})
	}

	_, err := GridFor(0, 10, Normal)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	return img
}

func opaque(img image.Image, x, y int) bool {
	_, _, _, a := img.At(x, y).RGBA()
	return a > 0
}

func TestSliceCutsMatchingTabsAndBlanks(t *testing.T) {
	set, err := Slice(gradient(64, 48), Easy)
	require.NoError(t, err)

	// 4 rows along the short side, 5 columns of 96.
	require.Equal(t, 5, set.Cols)
	require.Equal(t, 4, set.Rows)
	require.Equal(t, 96.0, set.PieceSize)
	assert.Equal(t, 20, set.Len())
	assert.Equal(t, image.Rect(0, 0, 480, 384), set.Preview.Bounds())

	fill, outline := set.Piece(0)
	require.NotNil(t, fill)
	assert.Equal(t, image.Rect(0, 0, 144, 144), fill.Bounds())

	assert.True(t, opaque(fill, 72, 72), "body")
	assert.False(t, opaque(fill, 5, 5), "corner margin")
	assert.True(t, opaque(fill, 72, 132), "bottom tab")
	assert.False(t, opaque(fill, 114, 72), "right blank")

	right, _ := set.Piece(1)
	assert.True(t, opaque(right, 12, 72), "left tab of the neighbor")

	assert.True(t, opaque(outline, 24, 72), "edge")
	assert.False(t, opaque(outline, 72, 72), "interior")
}

func TestSlicePieceOutOfRange(t *testing.T) {
	set, err := Slice(gradient(20, 20), Easy)
	require.NoError(t, err)

	fill, outline := set.Piece(set.Len())
	assert.Nil(t, fill)
	assert.Nil(t, outline)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	img, err := Decode(bytes.NewReader(encodePNG(t, gradient(8, 6))))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())

	_, err = Decode(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

// hugeHeaderPNG is a small valid PNG whose header claims side x side pixels.
func hugeHeaderPNG(t *testing.T, side uint32) []byte {
	t.Helper()

	raw := encodePNG(t, gradient(8, 6))

	// IHDR data follows the 8-byte signature and the chunk length and type.
	binary.BigEndian.PutUint32(raw[16:20], side)
	binary.BigEndian.PutUint32(raw[20:24], side)
	binary.BigEndian.PutUint32(raw[29:33], crc32.ChecksumIEEE(raw[12:29]))

	return raw
}

func TestDecodeRejectsHugeDeclaredSize(t *testing.T) {
	raw := hugeHeaderPNG(t, 30000)
	require.Less(t, len(raw), 1024)

	_, err := Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = Open(context.Background(), nil, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = Decode(bytes.NewReader(bytes.Repeat([]byte{0}, maxImageBytes+1)))
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestOpenDataURLAndFile(t *testing.T) {
	raw := encodePNG(t, gradient(8, 6))

	img, err := Open(context.Background(), nil, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = Open(context.Background(), nil, "data:image/png,plain")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	img, err = Open(context.Background(), nil, path)
	require.NoError(t, err)
	assert.Equal(t, 6, img.Bounds().Dy())
}

func TestFetch(t *testing.T) {
	raw := encodePNG(t, gradient(8, 6))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pic.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	img, err := Fetch(context.Background(), srv.Client(), srv.URL+"/pic.png")
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = Fetch(context.Background(), srv.Client(), srv.URL+"/missing.png")
	assert.Error(t, err)
}
