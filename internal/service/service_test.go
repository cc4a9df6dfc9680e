package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ocr-rag/internal/chromemdb"
	"ocr-rag/internal/config"
	"ocr-rag/internal/history"
	"ocr-rag/internal/metrics"
	"ocr-rag/internal/models"
	"ocr-rag/internal/ocr"
	"ocr-rag/internal/rag"
	"ocr-rag/internal/storage"
	"ocr-rag/internal/testutil"
)

type fixture struct {
	svc *Service
	llm *testutil.ScriptedLLM
	ocr *testutil.StubOCR
}

func newFixture(t *testing.T, replies ...string) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.RAG.IndexDir = t.TempDir()
	cfg.OCR.Workers = 2
	cfg.LLM.Label = "stub/model"

	store, err := storage.NewLocalStorage(cfg.Storage.DataDir)
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	index, err := chromemdb.NewVectorDBManager(&cfg.RAG, testutil.NewVocabEmbedder())
	if err != nil {
		t.Fatalf("NewVectorDBManager() error = %v", err)
	}
	llm := &testutil.ScriptedLLM{Replies: replies}
	engine := &testutil.StubOCR{Pages: map[string]ocr.Page{
		"doc.pdf_page1_img1.jpeg": {Width: 800, Height: 600, Tokens: testutil.Line(40, 20, "alpha", "beta", "gamma")},
		"doc.pdf_page2_img2.jpeg": {Width: 800, Height: 600, Tokens: testutil.Line(80, 30, "delta", "epsilon")},
	}}

	svc, err := New(cfg, Deps{
		Storage:     store,
		Index:       index,
		History:     history.NewMemoryStore(),
		OCR:         engine,
		Rasterizer:  testutil.StubRasterizer{},
		Synthesizer: rag.NewSynthesizer(llm, &cfg.LLM),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{svc: svc, llm: llm, ocr: engine}
}

func (f *fixture) upload(t *testing.T, sessionID string) *models.UploadResult {
	t.Helper()
	sources, err := f.svc.SpoolFiles(sessionID, []string{"doc.pdf"}, [][]byte{testutil.MinimalPDF(2)})
	if err != nil {
		t.Fatalf("SpoolFiles() error = %v", err)
	}
	res, err := f.svc.Upload(context.Background(), sessionID, sources)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	return res
}

func TestUploadAndAsk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Alpha comes first.")
	res := f.upload(t, "s1")

	if res.SessionID != "s1" || res.ChunkCount != 2 || len(res.PDFNames) != 1 || res.PDFNames[0] != "doc.pdf" {
		t.Fatalf("unexpected upload result %+v", res)
	}
	wantText := "File: doc.pdf_page1_img1.jpeg\nalpha beta gamma\n\nFile: doc.pdf_page2_img2.jpeg\ndelta epsilon\n\n"
	if res.FullOCRText != wantText {
		t.Fatalf("FullOCRText = %q, want %q", res.FullOCRText, wantText)
	}
	if _, ok := res.Performance["ocr_processing_ms"]; !ok {
		t.Fatalf("missing ocr timing in %v", res.Performance)
	}

	for _, name := range []string{"doc.pdf", "doc.pdf_page1_img1.jpeg", "doc.pdf_page1_img1_coordinates.txt", ocrTextName} {
		if _, err := f.svc.Artifact(ctx, "s1", name); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}
	coords, _ := f.svc.Artifact(ctx, "s1", "doc.pdf_page2_img2_coordinates.txt")
	if !strings.HasPrefix(string(coords), "text\tleft\ttop\twidth\theight\ndelta\t30\t80\t50\t12\n") {
		t.Fatalf("coordinates = %q", coords)
	}

	resp, err := f.svc.Ask(ctx, "s1", "alpha")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !strings.HasPrefix(resp.Answer, "Alpha comes first.\n\nSource:[File: doc.pdf_page1_img1.jpeg, BBox: [20, 40, 170, 52]]") {
		t.Fatalf("Answer = %q", resp.Answer)
	}
	if len(resp.BBoxes) != 2 || resp.WebFallback {
		t.Fatalf("unexpected response %+v", resp)
	}
	for _, want := range []string{
		"[Image Number: 1, File: doc.pdf_page1_img1.jpeg] alpha beta gamma",
		"[Image Number: 2, File: doc.pdf_page2_img2.jpeg] delta epsilon",
	} {
		if !strings.Contains(f.llm.Prompts[0], want) {
			t.Fatalf("prompt missing %q:\n%s", want, f.llm.Prompts[0])
		}
	}

	turns, err := f.svc.History(ctx, "s1")
	if err != nil || len(turns) != 1 || turns[0].Question != "alpha" || turns[0].ModelLabel != "stub/model" {
		t.Fatalf("History() = %+v, %v", turns, err)
	}

	if _, ok := f.svc.Metrics()["llm_inference"]; !ok {
		t.Fatalf("collector missing llm_inference: %v", f.svc.Metrics())
	}
}

func TestAskCallerErrors(t *testing.T) {
	f := newFixture(t, "x")
	ctx := context.Background()
	if _, err := f.svc.Ask(ctx, "  ", "q"); !errors.Is(err, ErrSessionRequired) {
		t.Fatalf("Ask(no session) error = %v", err)
	}
	if _, err := f.svc.Ask(ctx, "ghost", "q"); !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("Ask(ghost) error = %v", err)
	}
	if _, err := f.svc.Ask(ctx, "ghost", ""); !errors.Is(err, ErrQueryRequired) {
		t.Fatalf("Ask(empty query) error = %v", err)
	}
	if f.llm.Calls() != 0 {
		t.Fatalf("llm called for rejected questions")
	}
	if got := f.svc.Metrics()[metrics.StageTotalQuestion]; got.Count != 1 {
		t.Fatalf("failed turn not counted in %s: %+v", metrics.StageTotalQuestion, got)
	}
}

func TestUnsafeSessionIDsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Alpha.")
	f.upload(t, "s1")

	for _, id := range []string{"team-a/s1", "../s1", "s 1", "s1\\x"} {
		if _, err := f.svc.Ask(ctx, id, "alpha"); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("Ask(%q) error = %v", id, err)
		}
		if _, err := f.svc.History(ctx, id); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("History(%q) error = %v", id, err)
		}
		if err := f.svc.Reset(ctx, id, true); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("Reset(%q) error = %v", id, err)
		}
		if _, err := f.svc.Artifact(ctx, id, ocrTextName); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("Artifact(%q) error = %v", id, err)
		}
		sources, _ := f.svc.SpoolFiles("tmp", []string{"doc.pdf"}, [][]byte{testutil.MinimalPDF(1)})
		if _, err := f.svc.Upload(ctx, id, sources); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("Upload(%q) error = %v", id, err)
		}
	}

	if _, err := f.svc.Artifact(ctx, "s1", ocrTextName); err != nil {
		t.Fatalf("s1 artifacts touched by rejected resets: %v", err)
	}
	if _, err := f.svc.Ask(ctx, "s1", "alpha"); err != nil {
		t.Fatalf("s1 index touched by rejected resets: %v", err)
	}
}

func TestUploadErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.Upload(ctx, "s", nil); !errors.Is(err, ErrNoFiles) {
		t.Fatalf("Upload(nil) error = %v", err)
	}

	bad, _ := f.svc.SpoolFiles("s", []string{"bad.pdf"}, [][]byte{[]byte("not a pdf")})
	if _, err := f.svc.Upload(ctx, "s", bad); !errors.Is(err, ErrInvalidPDF) {
		t.Fatalf("Upload(bad) error = %v", err)
	}

	if _, err := f.svc.SpoolFiles("s", []string{"a.pdf", "b.pdf"}, [][]byte{nil}); !errors.Is(err, ErrUploadMismatch) {
		t.Fatalf("SpoolFiles(mismatch) error = %v", err)
	}

	blank, _ := f.svc.SpoolFiles("s", []string{"blank.pdf"}, [][]byte{testutil.MinimalPDF(1)})
	if _, err := f.svc.Upload(ctx, "s", blank); !errors.Is(err, ErrExtractionEmpty) {
		t.Fatalf("Upload(blank) error = %v", err)
	}
	if _, err := f.svc.Ask(ctx, "s", "q"); !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("index built for empty extraction: %v", err)
	}

	f.ocr.Err = testutil.ErrStub
	if _, err := f.svc.Upload(ctx, "s", blank); !errors.Is(err, testutil.ErrStub) {
		t.Fatalf("Upload(ocr failure) error = %v", err)
	}
}

func TestUploadGeneratesSessionID(t *testing.T) {
	f := newFixture(t)
	sources, _ := f.svc.SpoolFiles("tmp", []string{"doc.pdf"}, [][]byte{testutil.MinimalPDF(2)})
	res, err := f.svc.Upload(context.Background(), "string", sources)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(res.SessionID) != 36 || res.SessionID == "string" {
		t.Fatalf("SessionID = %q, want a UUID", res.SessionID)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Alpha.")
	f.upload(t, "s1")
	if _, err := f.svc.Ask(ctx, "s1", "alpha"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.svc.Reset(ctx, "s1", i == 1); err != nil {
			t.Fatalf("Reset() #%d error = %v", i, err)
		}
		turns, err := f.svc.History(ctx, "s1")
		if err != nil || len(turns) != 0 {
			t.Fatalf("History() after reset = %+v, %v", turns, err)
		}
		if _, err := f.svc.Ask(ctx, "s1", "alpha"); !errors.Is(err, ErrIndexNotFound) {
			t.Fatalf("Ask() after reset error = %v", err)
		}
	}
	if _, err := f.svc.Artifact(ctx, "s1", ocrTextName); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("artifacts survived purge: %v", err)
	}
	if err := f.svc.Reset(ctx, "never-seen", false); err != nil {
		t.Fatalf("Reset(unknown) error = %v", err)
	}
	if err := f.svc.Reset(ctx, "", false); !errors.Is(err, ErrSessionRequired) {
		t.Fatalf("Reset(empty) error = %v", err)
	}
}

func TestSearchOCRText(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "s1")
	snippets, err := f.svc.SearchOCRText(context.Background(), "s1", "EPSILON")
	if err != nil {
		t.Fatalf("SearchOCRText() error = %v", err)
	}
	if len(snippets) != 1 || snippets[0].File != "doc.pdf_page2_img2.jpeg" || snippets[0].Text != "delta epsilon" {
		t.Fatalf("snippets = %+v", snippets)
	}
}
