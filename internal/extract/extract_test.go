package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExtractPlainText(t *testing.T) {
	e := New(DefaultPortraitConfig(), nil)
	res, err := e.Extract([]byte("张三\n清华大学 计算机科学\nGo, Python"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ContentType != MimeText {
		t.Fatalf("unexpected content type %q", res.ContentType)
	}
	if !strings.Contains(res.Text, "清华大学") || res.Portrait != nil {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestExtractMalformedPDF(t *testing.T) {
	e := New(DefaultPortraitConfig(), nil)
	res, err := e.Extract([]byte("%PDF-1.4\nthis is not really a pdf"))
	if err == nil {
		t.Fatalf("expected error for malformed pdf")
	}
	if res.Text != "" || res.Portrait != nil {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestExtractUnsupported(t *testing.T) {
	e := New(DefaultPortraitConfig(), nil)
	_, err := e.Extract([]byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x00})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := e.Extract(nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestExtractContextCancelled(t *testing.T) {
	e := New(DefaultPortraitConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Either outcome is acceptable when the parse is instant; a cancelled
	// context must never hang.
	if _, err := e.ExtractContext(ctx, []byte("plain text resume")); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExtractContextWaitsForParseSlot(t *testing.T) {
	e := New(DefaultPortraitConfig(), nil)
	if !e.parses.TryAcquire(MaxParses) {
		t.Fatalf("expected free parse slots")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := e.ExtractContext(ctx, []byte("plain text resume")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while all slots are busy, got %v", err)
	}

	e.parses.Release(MaxParses)
	res, err := e.ExtractContext(context.Background(), []byte("plain text resume"))
	if err != nil || res.Text != "plain text resume" {
		t.Fatalf("unexpected result %+v %v", res, err)
	}
	if !e.parses.TryAcquire(MaxParses) {
		t.Fatalf("finished parse did not release its slot")
	}
}

func TestXMLToText(t *testing.T) {
	content := `<w:document><w:body><w:p><w:r><w:t>Li Lei</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Go &amp; Rust</w:t><w:tab/><w:t>2024</w:t></w:r></w:p><w:p></w:p></w:body></w:document>`
	got := xmlToText(content)
	want := "Li Lei\nGo & Rust\t2024"
	if got != want {
		t.Fatalf("xmlToText = %q, want %q", got, want)
	}
}

func TestPortraitContentType(t *testing.T) {
	if ct := (&Portrait{Ext: "jpg"}).ContentType(); ct != "image/jpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if ct := (&Portrait{Ext: "png"}).ContentType(); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !Supported(MimeDOCX) || Supported("image/png") {
		t.Fatalf("unexpected Supported result")
	}
}
