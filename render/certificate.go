package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// Page layout constants (A4 landscape in mm).
const (
	pageWidth   = 297.0
	pageHeight  = 210.0
	pageMargin  = 20.0
	previewSize = 90.0
	qrSize      = 30.0
)

var ErrNotCompleted = errors.New("puzzle not completed")

// Certificate describes a finished puzzle.
type Certificate struct {
	Title     string
	Player    string
	Elapsed   int
	Pieces    int
	Completed bool
	Finished  time.Time

	// Preview, if set, is embedded under the heading.
	Preview image.Image

	// Link, if set, is printed with a QR code for sharing.
	Link string
}

// FormatElapsed renders whole seconds as h:mm:ss, or m:ss under an hour.
func FormatElapsed(seconds int) string {
	seconds = max(seconds, 0)

	h := seconds / 3600
	m := seconds / 60 % 60
	s := seconds % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// WriteCertificate writes a one-page PDF completion certificate to w.
func WriteCertificate(w io.Writer, c Certificate) error {
	if !c.Completed {
		return ErrNotCompleted
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, pageMargin)
	pdf.SetTitle("Puzzle completion certificate", true)
	pdf.AddPage()

	width := pageWidth - 2*pageMargin

	pdf.SetDrawColor(60, 60, 60)
	pdf.SetLineWidth(1)
	pdf.Rect(pageMargin/2, pageMargin/2, pageWidth-pageMargin, pageHeight-pageMargin, "D")

	pdf.SetFont("Helvetica", "B", 28)
	pdf.SetXY(pageMargin, pageMargin)
	pdf.CellFormat(width, 14, "Puzzle Complete", "", 1, "C", false, 0, "")

	title := c.Title
	if title == "" {
		title = "Untitled puzzle"
	}

	pdf.SetFont("Helvetica", "", 14)
	pdf.SetX(pageMargin)
	pdf.CellFormat(width, 8, title, "", 1, "C", false, 0, "")

	y := pdf.GetY() + 4

	if c.Preview != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, c.Preview); err != nil {
			return fmt.Errorf("encode preview: %w", err)
		}

		b := c.Preview.Bounds()
		pw, ph := previewSize, previewSize
		if b.Dx() >= b.Dy() && b.Dx() > 0 {
			ph = previewSize * float64(b.Dy()) / float64(b.Dx())
		} else if b.Dy() > 0 {
			pw = previewSize * float64(b.Dx()) / float64(b.Dy())
		}

		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("preview", opts, &buf)
		pdf.ImageOptions("preview", (pageWidth-pw)/2, y, pw, ph, false, opts, 0, "")

		y += ph + 6
	}

	pdf.SetFont("Helvetica", "", 12)
	pdf.SetXY(pageMargin, y)

	lines := []string{}
	if c.Player != "" {
		lines = append(lines, "Solved by "+c.Player)
	}
	lines = append(lines, fmt.Sprintf("%d pieces in %s", c.Pieces, FormatElapsed(c.Elapsed)))
	if !c.Finished.IsZero() {
		lines = append(lines, c.Finished.UTC().Format("2 January 2006 15:04 MST"))
	}

	for _, line := range lines {
		pdf.SetX(pageMargin)
		pdf.CellFormat(width, 7, line, "", 1, "C", false, 0, "")
	}

	if c.Link != "" {
		qr, err := qrcode.Encode(c.Link, qrcode.Medium, 256)
		if err != nil {
			return fmt.Errorf("encode qr code: %w", err)
		}

		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qr))

		qx := pageWidth - pageMargin - qrSize
		qy := pageHeight - pageMargin - qrSize - 6
		pdf.ImageOptions("qr", qx, qy, qrSize, qrSize, false, opts, 0, "")

		pdf.SetFont("Helvetica", "", 8)
		pdf.SetXY(pageMargin, pageHeight-pageMargin-5)
		pdf.CellFormat(width, 5, c.Link, "", 0, "R", false, 0, "")
	}

	return pdf.Output(w)
}
