package extract

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	docxBreaks = strings.NewReplacer("</w:p>", "\n", "<w:br/>", "\n", "<w:tab/>", "\t")
	xmlTag     = regexp.MustCompile(`<[^>]+>`)
)

func docxText(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}
	defer r.Close()
	return xmlToText(r.Editable().GetContent()), nil
}

// xmlToText flattens WordprocessingML markup into plain text.
func xmlToText(content string) string {
	content = docxBreaks.Replace(content)
	content = xmlTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)

	lines := strings.Split(content, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
