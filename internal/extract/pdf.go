package extract

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	pdf "github.com/ledongthuc/pdf"
	"github.com/unidoc/unipdf/v3/core"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// pdfText reads every page in visual reading order: rows top to bottom, and
// glyph runs left to right within a row.
func pdfText(data []byte) (string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		for _, row := range rows {
			line := joinRow(row.Content)
			if strings.TrimSpace(line) == "" {
				continue
			}
			builder.WriteString(line)
			builder.WriteString("\n")
		}
	}
	return builder.String(), nil
}

// joinRow inserts a space where the horizontal gap between two runs is wider
// than a quarter of the font size.
func joinRow(texts pdf.TextHorizontal) string {
	var b strings.Builder
	prevEnd := math.Inf(-1)
	for _, t := range texts {
		if b.Len() > 0 && t.X-prevEnd > t.FontSize/4 {
			b.WriteByte(' ')
		}
		b.WriteString(t.S)
		prevEnd = t.X + t.W
	}
	return b.String()
}

// pdfPortraitCandidates lists the images placed on the first page. Images
// failing the shape filters are skipped before encoding. JPEG images keep
// their embedded bytes; anything else is re-encoded as PNG.
func pdfPortraitCandidates(data []byte, cfg PortraitConfig) ([]Candidate, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	if numPages == 0 {
		return nil, nil
	}
	page, err := reader.GetPage(1)
	if err != nil {
		return nil, fmt.Errorf("get first page: %w", err)
	}
	box, err := page.GetMediaBox()
	if err != nil {
		return nil, fmt.Errorf("media box: %w", err)
	}
	pageW, pageH := box.Width(), box.Height()
	if pageW <= 0 || pageH <= 0 {
		return nil, fmt.Errorf("degenerate media box %.1fx%.1f", pageW, pageH)
	}

	ex, err := extractor.New(page)
	if err != nil {
		return nil, fmt.Errorf("new extractor: %w", err)
	}
	images, err := ex.ExtractPageImages(nil)
	if err != nil {
		return nil, fmt.Errorf("extract images: %w", err)
	}

	raw := dctStreams(page.Resources)

	var out []Candidate
	for _, mark := range images.Images {
		if mark.Image == nil {
			continue
		}
		width, height := int(mark.Image.Width), int(mark.Image.Height)
		if !cfg.admissibleShape(width, height) {
			continue
		}
		key := [2]int{width, height}
		var stream []byte
		if queue := raw[key]; len(queue) > 0 {
			stream, raw[key] = queue[0], queue[1:]
		}
		encoded, ext, err := encodeCandidate(stream, mark.Image.ToGoImage)
		if err != nil {
			continue
		}
		// PDF user space has its origin at the bottom-left corner.
		out = append(out, Candidate{
			Width:  width,
			Height: height,
			Bytes:  len(encoded),
			Left:   (mark.X - box.Llx) / pageW,
			Right:  (mark.X + mark.Width - box.Llx) / pageW,
			Top:    (box.Ury - (mark.Y + mark.Height)) / pageH,
			Bottom: (box.Ury - mark.Y) / pageH,
			Data:   encoded,
			Ext:    ext,
		})
	}
	return out, nil
}

// dctStreams collects the embedded bytes of every DCT-encoded image XObject
// in res, keyed by pixel size and kept in resource order.
func dctStreams(res *model.PdfPageResources) map[[2]int][][]byte {
	out := map[[2]int][][]byte{}
	if res == nil {
		return out
	}
	dict, ok := core.GetDict(res.XObject)
	if !ok {
		return out
	}
	for _, name := range dict.Keys() {
		if _, kind := res.GetXObjectByName(name); kind != model.XObjectTypeImage {
			continue
		}
		ximg, err := res.GetXObjectImageByName(name)
		if err != nil || ximg == nil || ximg.Filter == nil || ximg.Width == nil || ximg.Height == nil {
			continue
		}
		if ximg.Filter.GetFilterName() != core.StreamEncodingFilterNameDCT || len(ximg.Stream) == 0 {
			continue
		}
		key := [2]int{int(*ximg.Width), int(*ximg.Height)}
		out[key] = append(out[key], ximg.Stream)
	}
	return out
}

// encodeCandidate returns the bytes stored for a candidate. A non-empty raw
// JPEG stream is used as is; otherwise decode is called and its result is
// written as PNG.
func encodeCandidate(raw []byte, decode func() (image.Image, error)) ([]byte, string, error) {
	if len(raw) > 0 {
		return raw, "jpg", nil
	}
	img, err := decode()
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), "png", nil
}
