package preflight

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestAnalyzeMultipartOrdering(t *testing.T) {
	svc := newTestService(t)
	headers := buildFileHeaders(t, []uploadFile{
		{"first.png", opaquePNG(t, 10, 10)},
		{"second.png", opaquePNG(t, 10, 10)},
		{"third.png", opaquePNG(t, 10, 10)},
	})

	batch, err := svc.AnalyzeMultipart(context.Background(), headers, AnalyzeOptions{})
	if err != nil {
		t.Fatalf("AnalyzeMultipart returned error: %v", err)
	}

	// 最後に処理したファイルが先頭（index 1）に来る
	wantOrder := []string{"third.png", "second.png", "first.png"}
	if len(batch.Records) != len(wantOrder) {
		t.Fatalf("got %d records, want %d", len(batch.Records), len(wantOrder))
	}
	for i, name := range wantOrder {
		rec := batch.Records[i]
		if rec.Name != name {
			t.Errorf("Records[%d].Name = %q, want %q", i, rec.Name, name)
		}
		if rec.DisplayIndex != i+1 {
			t.Errorf("Records[%d].DisplayIndex = %d, want %d", i, rec.DisplayIndex, i+1)
		}
	}
}

func TestAnalyzeMultipartIsolatesFailures(t *testing.T) {
	svc := newTestService(t)
	headers := buildFileHeaders(t, []uploadFile{
		{"good.png", opaquePNG(t, 20, 20)},
		{"broken.png", []byte("garbage bytes")},
		{"notes.txt", []byte("plain text")},
		{"doc.pdf", []byte("%PDF-1.4 not a real pdf")},
	})

	batch, err := svc.AnalyzeMultipart(context.Background(), headers, AnalyzeOptions{})
	if err != nil {
		t.Fatalf("AnalyzeMultipart returned error: %v", err)
	}
	if len(batch.Records) != 4 {
		t.Fatalf("got %d records, want 4", len(batch.Records))
	}

	byName := map[string]*FileRecord{}
	for _, rec := range batch.Records {
		byName[rec.Name] = rec
	}

	good := byName["good.png"]
	if good.Error != "" || good.PixelDimensions == nil {
		t.Errorf("good.png should survive the broken sibling: %+v", good)
	}
	if byName["broken.png"].Error == "" {
		t.Error("broken.png should carry a record-level error")
	}
	if byName["notes.txt"].Kind != KindUnknown {
		t.Errorf("notes.txt kind = %v, want Unknown", byName["notes.txt"].Kind)
	}
	pdf := byName["doc.pdf"]
	if pdf.Kind != KindPDF || pdf.Error != "" {
		t.Errorf("doc.pdf = %+v, want PDF record without error", pdf)
	}
	if pdf.Pages != 0 {
		t.Errorf("unparsable PDF should fall back to 0 pages, got %d", pdf.Pages)
	}
}

func TestAnalyzeMultipartAlert(t *testing.T) {
	svc := newTestService(t)
	headers := buildFileHeaders(t, []uploadFile{
		{"opaque.png", opaquePNG(t, 10, 10)},
		{"translucent.png", alphaPNG(t, 10, 10)},
	})

	var alerted []string
	batch, err := svc.AnalyzeMultipart(context.Background(), headers, AnalyzeOptions{
		OnAlert: func(rec *FileRecord) { alerted = append(alerted, rec.Name) },
	})
	if err != nil {
		t.Fatalf("AnalyzeMultipart returned error: %v", err)
	}

	if !batch.Alert {
		t.Error("batch.Alert should be set when an RGBA image is present")
	}
	if len(alerted) != 1 || alerted[0] != "translucent.png" {
		t.Errorf("alerted = %v, want [translucent.png]", alerted)
	}
}

func TestAnalyzeMultipartEnhance(t *testing.T) {
	svc := newTestService(t)
	headers := buildFileHeaders(t, []uploadFile{
		{"art.png", opaquePNG(t, 100, 80)},
		{"doc.pdf", []byte("%PDF-1.4")},
	})

	batch, err := svc.AnalyzeMultipart(context.Background(), headers, AnalyzeOptions{
		Enhance:  true,
		AddBleed: true,
		BleedMm:  5,
	})
	if err != nil {
		t.Fatalf("AnalyzeMultipart returned error: %v", err)
	}

	var art, pdf *FileRecord
	for _, rec := range batch.Records {
		switch rec.Name {
		case "art.png":
			art = rec
		case "doc.pdf":
			pdf = rec
		}
	}

	if art.Enhanced == nil {
		t.Fatal("art.png should carry an enhanced result")
	}
	if art.Enhanced.Mode != ColorModeCMYK || art.Enhanced.BleedPx != 59 {
		t.Errorf("Enhanced = %+v, want CMYK with 59px bleed", art.Enhanced)
	}
	if art.Enhanced.Width != 100+2*59 || art.Enhanced.Height != 80+2*59 {
		t.Errorf("Enhanced canvas = %dx%d, want 218x198", art.Enhanced.Width, art.Enhanced.Height)
	}
	if pdf.Enhanced != nil {
		t.Error("PDF records must not be enhanced")
	}
}

func TestAnalyzeMultipartDefaultBleed(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.DefaultBleedMm = 3
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	headers := buildFileHeaders(t, []uploadFile{{"art.png", opaquePNG(t, 50, 50)}})
	batch, err := svc.AnalyzeMultipart(context.Background(), headers, AnalyzeOptions{
		Enhance:  true,
		AddBleed: true,
	})
	if err != nil {
		t.Fatalf("AnalyzeMultipart returned error: %v", err)
	}

	// 3mm * 300 / 25.4 = 35.4 → 35px
	if got := batch.Records[0].Enhanced.BleedPx; got != 35 {
		t.Errorf("BleedPx = %d, want 35 from config default", got)
	}
}

func TestAnalyzeMultipartNoFiles(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AnalyzeMultipart(context.Background(), nil, AnalyzeOptions{})

	var perr *Error
	if !errors.As(err, &perr) || perr.Code != CodeInvalidInput {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
}

func TestAnalyzeMultipartCleansWorkspace(t *testing.T) {
	cfg := newTestConfig(t)
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	headers := buildFileHeaders(t, []uploadFile{{"a.png", opaquePNG(t, 10, 10)}})
	if _, err := svc.AnalyzeMultipart(context.Background(), headers, AnalyzeOptions{}); err != nil {
		t.Fatalf("AnalyzeMultipart returned error: %v", err)
	}

	entries, err := os.ReadDir(cfg.WorkDir)
	if err != nil {
		t.Fatalf("failed to read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace not cleaned up, %d entries remain", len(entries))
	}
}

func TestAnalyzeMultipartCanceledContext(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	headers := buildFileHeaders(t, []uploadFile{{"a.png", opaquePNG(t, 10, 10)}})
	_, err := svc.AnalyzeMultipart(ctx, headers, AnalyzeOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
