package report

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/go-pdf/fpdf"

	"taxbridge/internal/log"
)

// Page layout in millimetres on A4 portrait.
const (
	marginX       = 10.0
	logoX         = 150.0
	logoY         = 10.0
	logoBox       = 40.0
	rowHeight     = 10.0
	pageBreakY    = 270.0
	cellMaxRunes  = 30
	titleFontSize = 14.0
	bodyFontSize  = 10.0
	tableFontSize = 9.0
	fieldSpacing  = 6.0
)

var columnWidths = [...]float64{30, 30, 30, 20, 20, 40}

func (e *Exporter) pdf(ctx context.Context, in Input) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetAutoPageBreak(false, 0)
	doc.SetTitle(in.Address+" transactions", true)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	y := 10.0
	doc.SetFont("Helvetica", "", titleFontSize)
	doc.Text(marginX, y, "Company Profile")
	y += 8

	doc.SetFontSize(bodyFontSize)
	line := func(s string) {
		doc.Text(marginX, y, tr(s))
		y += fieldSpacing
	}
	if p := in.Profile; p != nil {
		line("Name: " + p.Name)
		line("Tax ID: " + p.TaxID)
		line("City: " + p.City)
		line("Country: " + e.countryName(ctx, p.Country))
		line("Postal Code: " + p.PostalCode)
		line("Address: " + orNA(p.Address))
		line("D-U-N-S ID: " + p.DUNSID)
		if p.LogoURL != "" {
			e.drawLogo(ctx, doc, p.LogoURL)
		}
		y += 2
	} else {
		line("Name: N/A")
		line("Address: N/A")
		line("No company data found.")
	}

	y += 4
	doc.SetFontSize(titleFontSize)
	doc.Text(marginX, y, "Transactions")
	y += 14

	tableWidth := 0.0
	for _, w := range columnWidths {
		tableWidth += w
	}

	doc.SetFont("Helvetica", "B", tableFontSize)
	headers := []string{"Hash", "From", "To", "Value (ETH)", fiatLabel(in.Fiat), "Timestamp"}
	x := marginX
	for i, h := range headers {
		doc.Text(x+1, y, h)
		x += columnWidths[i]
	}
	doc.Rect(marginX, y-rowHeight+2, tableWidth, rowHeight, "D")
	doc.SetFont("Helvetica", "", tableFontSize)
	y += rowHeight

	for _, tx := range in.Transactions {
		doc.Rect(marginX, y-rowHeight+2, tableWidth, rowHeight, "D")
		x = marginX
		for i, cell := range e.row(tx, in.Valuations) {
			doc.Text(x+1, y-3, tr(truncate(cell, cellMaxRunes)))
			x += columnWidths[i]
		}
		y += rowHeight
		if y > pageBreakY {
			doc.AddPage()
			y = 10
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) countryName(ctx context.Context, code string) string {
	if code == "" || e.countries == nil {
		return code
	}
	name, err := e.countries.Resolve(ctx, code)
	if err != nil || name == "" {
		e.logger.DebugContext(ctx, "Country not resolved, using code", "code", code)
		return code
	}
	return name
}

// drawLogo places the logo in the top right box. Any failure leaves the
// page without a logo.
func (e *Exporter) drawLogo(ctx context.Context, doc *fpdf.Fpdf, url string) {
	if e.logos == nil {
		return
	}
	raw, err := e.logos.Load(ctx, url)
	if err != nil {
		e.logger.WarnContext(ctx, "Logo not loaded", log.FieldError, err.Error())
		return
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		e.logger.WarnContext(ctx, "Logo not decodable", log.FieldError, err.Error())
		return
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		e.logger.WarnContext(ctx, "Logo not encodable", log.FieldError, err.Error())
		return
	}

	const name = "company-logo"
	doc.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, &pngBuf)
	if doc.Err() {
		e.logger.WarnContext(ctx, "Logo rejected by renderer", log.FieldError, doc.Error().Error())
		doc.ClearError()
		return
	}
	b := img.Bounds()
	w, h := logoSize(float64(b.Dx()), float64(b.Dy()))
	doc.ImageOptions(name, logoX, logoY, w, h, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
}

// logoSize fits w x h into the logo box preserving aspect ratio. Images are
// never scaled up.
func logoSize(w, h float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return logoBox, logoBox
	}
	scale := math.Min(math.Min(logoBox/w, logoBox/h), 1)
	return w * scale, h * scale
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
