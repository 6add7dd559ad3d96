// Package extract turns raw resume bytes into plain text and, for PDFs, a
// best-guess portrait taken from the first page.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/unidoc/unipdf/v3/common/license"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dharsanguruparan/ResumeVault/internal/logger"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
)

// MaxParses bounds how many parses may run at once, including parses whose
// caller stopped waiting.
const MaxParses = 8

// ErrUnsupported is returned for content types the extractor cannot read.
var ErrUnsupported = errors.New("unsupported document type")

// Portrait is an encoded image believed to be the candidate's photo.
type Portrait struct {
	Data []byte
	Ext  string
}

// ContentType returns the MIME type matching Ext.
func (p *Portrait) ContentType() string {
	if p.Ext == "jpg" {
		return "image/jpeg"
	}
	return "image/" + p.Ext
}

// Result is what a document yielded. Text may be empty; Portrait may be nil.
type Result struct {
	Text        string
	Portrait    *Portrait
	ContentType string
}

// Extractor reads PDF, DOCX and plain-text documents.
type Extractor struct {
	portrait PortraitConfig
	logger   *zap.Logger
	parses   *semaphore.Weighted
}

// New constructs an Extractor.
func New(cfg PortraitConfig, log *zap.Logger) *Extractor {
	return &Extractor{
		portrait: cfg,
		logger:   logger.OrNop(log),
		parses:   semaphore.NewWeighted(MaxParses),
	}
}

// SetLicenseKey registers a metered UniDoc key used by the portrait scan.
func SetLicenseKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("set unidoc license: %w", err)
	}
	return nil
}

// Detect returns the sniffed MIME type of data without parameters.
func Detect(data []byte) string {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is(MimePDF):
		return MimePDF
	case mt.Is(MimeDOCX):
		return MimeDOCX
	case mt.Is(MimeText):
		return MimeText
	}
	ct := mt.String()
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	return ct
}

// Supported reports whether Extract can read documents of contentType.
func Supported(contentType string) bool {
	switch contentType {
	case MimePDF, MimeDOCX, MimeText:
		return true
	}
	return false
}

// Extract reads data. Malformed input, including input that makes a parser
// panic, yields an empty Result and an error.
func (e *Extractor) Extract(data []byte) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()

	if len(data) == 0 {
		return Result{}, errors.New("empty document")
	}

	res.ContentType = Detect(data)
	switch res.ContentType {
	case MimePDF:
		text, err := pdfText(data)
		if err != nil {
			return Result{ContentType: MimePDF}, err
		}
		res.Text = text
		res.Portrait = e.findPortrait(data)
	case MimeDOCX:
		text, err := docxText(data)
		if err != nil {
			return Result{ContentType: MimeDOCX}, err
		}
		res.Text = text
	case MimeText:
		res.Text = string(data)
	default:
		return res, fmt.Errorf("%w: %s", ErrUnsupported, res.ContentType)
	}
	return res, nil
}

// ExtractContext runs Extract but gives up when ctx is done. An abandoned
// parse keeps running in the background and holds its slot until it returns,
// so at most MaxParses parses are ever alive.
func (e *Extractor) ExtractContext(ctx context.Context, data []byte) (Result, error) {
	if err := e.parses.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("extract document: %w", err)
	}
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.Extract(data)
		e.parses.Release(1)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("extract document: %w", ctx.Err())
	case out := <-done:
		return out.res, out.err
	}
}

// findPortrait never fails the extraction: a broken image stream only means
// there is no portrait.
func (e *Extractor) findPortrait(data []byte) (portrait *Portrait) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("portrait scan panicked", zap.Any("panic", r))
			portrait = nil
		}
	}()

	candidates, err := pdfPortraitCandidates(data, e.portrait)
	if err != nil {
		e.logger.Debug("portrait scan skipped", zap.Error(err))
		return nil
	}
	idx := SelectPortrait(candidates, e.portrait)
	if idx < 0 {
		return nil
	}
	c := candidates[idx]
	return &Portrait{Data: c.Data, Ext: c.Ext}
}
