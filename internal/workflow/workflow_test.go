package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"ocr-rag/internal/chromemdb"
	"ocr-rag/internal/config"
	"ocr-rag/internal/history"
	"ocr-rag/internal/metrics"
	"ocr-rag/internal/models"
	"ocr-rag/internal/rag"
	"ocr-rag/internal/testutil"
	"ocr-rag/internal/websearch"
)

type fakeIndex struct {
	docs []models.Document
	err  error
}

func (f fakeIndex) Search(ctx context.Context, query string, k int) ([]models.Document, error) {
	return f.docs, f.err
}

type fakeLoader struct {
	idx Searcher
	err error
}

func (f fakeLoader) Load(ctx context.Context, sessionID string) (Searcher, error) {
	return f.idx, f.err
}

type fakeWeb struct {
	results []websearch.Result
	err     error
	calls   int
}

func (f *fakeWeb) Search(ctx context.Context, query string, excluded []string, max int) ([]websearch.Result, error) {
	f.calls++
	return f.results, f.err
}

func localDocs() []models.Document {
	return []models.Document{{
		Content:  "alpha beta",
		Metadata: models.ChunkMetadata{Source: "a_page1_img1.jpeg", BBox: &models.BBox{1, 2, 3, 4}},
	}}
}

func newOrchestrator(llm *testutil.ScriptedLLM, web WebSearcher, store history.Store, loader IndexLoader) *Orchestrator {
	return New(Options{
		Loader:      loader,
		Synthesizer: rag.NewSynthesizer(llm, &config.LLMConfig{}),
		Web:         web,
		History:     store,
		ModelLabel:  "ollama/llama3.1",
	})
}

func TestDecide(t *testing.T) {
	cases := map[string]Branch{
		"The ANSWER IS NOT AVAILABLE in the context": BranchSearch,
		"this is not mentioned in the context.":      BranchSearch,
		"I cannot find information about that":       BranchSearch,
		"Alpha is the first letter.":                 BranchEnd,
		"":                                           BranchEnd,
	}
	for answer, want := range cases {
		if got := Decide(answer); got != want {
			t.Errorf("Decide(%q) = %v, want %v", answer, got, want)
		}
	}
}

func TestNoFallbackPath(t *testing.T) {
	llm := &testutil.ScriptedLLM{Replies: []string{"Alpha is a letter."}}
	web := &fakeWeb{}
	store := history.NewMemoryStore()
	o := newOrchestrator(llm, web, store, fakeLoader{idx: fakeIndex{docs: localDocs()}})

	timings := metrics.NewTimings()
	st := &State{Query: "what is alpha?", SessionID: "s1"}
	if err := o.Run(context.Background(), st, timings); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st.Answer != "Alpha is a letter." || st.WebFallback {
		t.Fatalf("unexpected state %+v", st)
	}
	if web.calls != 0 {
		t.Fatalf("web search called %d times", web.calls)
	}
	turns, _ := store.Get(context.Background(), "s1")
	if len(turns) != 1 || turns[0].ModelLabel != "ollama/llama3.1" || turns[0].SourceLabel != models.LocalSourceLabel {
		t.Fatalf("history = %+v", turns)
	}
	if _, err := time.Parse(models.TimestampLayout, st.Timestamp); err != nil {
		t.Fatalf("timestamp %q: %v", st.Timestamp, err)
	}
	m := timings.Map()
	for _, key := range []string{"vector_store_load_ms", "similarity_search_ms", "llm_inference_ms"} {
		if _, ok := m[key]; !ok {
			t.Errorf("timings missing %s", key)
		}
	}
	if _, ok := m["web_search_ms"]; ok {
		t.Errorf("web_search recorded without fallback")
	}
}

func TestFallbackPath(t *testing.T) {
	llm := &testutil.ScriptedLLM{Replies: []string{"Answer is NOT available in the context", "From the web: alpha."}}
	web := &fakeWeb{results: []websearch.Result{{URL: "https://x.example", Content: "alpha"}}}
	store := history.NewMemoryStore()
	o := newOrchestrator(llm, web, store, fakeLoader{idx: fakeIndex{docs: localDocs()}})

	st := &State{Query: "alpha?", SessionID: "s1", Messages: []models.HistoryTurn{{Question: "hi", Answer: "hello"}}}
	if err := o.Run(context.Background(), st, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if web.calls != 1 {
		t.Fatalf("web search called %d times, want 1", web.calls)
	}
	if st.Answer != "From the web: alpha." || !st.WebFallback {
		t.Fatalf("unexpected state %+v", st)
	}
	if len(st.Docs) != 1 || st.Docs[0].Metadata.Source != "a_page1_img1.jpeg" {
		t.Fatalf("local docs not kept: %+v", st.Docs)
	}
	if llm.Calls() != 2 {
		t.Fatalf("llm calls = %d, want 2", llm.Calls())
	}
	turns, _ := store.Get(context.Background(), "s1")
	if len(turns) != 2 {
		t.Fatalf("history = %+v", turns)
	}
	if turns[1].ModelLabel != models.WebModelLabel || turns[1].SourceLabel != models.WebSourceLabel || turns[1].Answer != st.Answer {
		t.Fatalf("web turn = %+v", turns[1])
	}
}

func TestFallbackFailures(t *testing.T) {
	cases := []struct {
		name string
		web  WebSearcher
		want string
	}{
		{"error", &fakeWeb{err: errors.New("boom")}, models.WebFailurePrefix + "boom"},
		{"empty", &fakeWeb{}, models.NoWebResultsAnswer},
		{"disabled", nil, models.WebFailurePrefix + "web search is not configured"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			llm := &testutil.ScriptedLLM{Replies: []string{"answer is not available in the context"}}
			o := newOrchestrator(llm, tc.web, history.NewMemoryStore(), fakeLoader{idx: fakeIndex{}})
			st := &State{Query: "q", SessionID: "s"}
			if err := o.Run(context.Background(), st, nil); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if st.Answer != tc.want {
				t.Fatalf("Answer = %q, want %q", st.Answer, tc.want)
			}
			if llm.Calls() != 1 {
				t.Fatalf("llm calls = %d, want 1", llm.Calls())
			}
		})
	}
}

func TestMissingIndexAborts(t *testing.T) {
	llm := &testutil.ScriptedLLM{Replies: []string{"x"}}
	store := history.NewMemoryStore()
	o := newOrchestrator(llm, &fakeWeb{}, store, fakeLoader{err: chromemdb.ErrIndexNotFound})

	err := o.Run(context.Background(), &State{Query: "q", SessionID: "ghost"}, nil)
	if !errors.Is(err, chromemdb.ErrIndexNotFound) {
		t.Fatalf("Run() error = %v, want ErrIndexNotFound", err)
	}
	if llm.Calls() != 0 {
		t.Fatalf("later stages ran after failed load")
	}
	if turns, _ := store.Get(context.Background(), "ghost"); len(turns) != 0 {
		t.Fatalf("history written for aborted turn")
	}
}

func TestRetrieveFailureDegrades(t *testing.T) {
	llm := &testutil.ScriptedLLM{Replies: []string{"ungrounded"}}
	o := newOrchestrator(llm, &fakeWeb{}, history.NewMemoryStore(), fakeLoader{idx: fakeIndex{err: errors.New("embed down")}})
	st := &State{Query: "q", SessionID: "s"}
	if err := o.Run(context.Background(), st, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st.Answer != "ungrounded" || len(st.Docs) != 0 {
		t.Fatalf("unexpected state %+v", st)
	}
}
