package metrics

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestTimings(t *testing.T) {
	tm := NewTimings()
	tm.Record(StageOCR, 2*time.Millisecond)
	tm.Record(StageOCR, 3*time.Millisecond)
	tm.Record(StageLLMInference, 1500*time.Microsecond)

	got := tm.Map()
	if got["ocr_processing_ms"] != 5 || got["llm_inference_ms"] != 1.5 {
		t.Fatalf("Map() = %v", got)
	}
	got["ocr_processing_ms"] = 0
	if tm.Map()["ocr_processing_ms"] != 5 {
		t.Fatalf("Map() must return a copy")
	}
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Record(StageSimilarity, time.Duration(i)*time.Millisecond)
		}(i)
	}
	wg.Wait()

	s := c.Summary()[StageSimilarity]
	if s.Count != 100 || s.MinMS != 1 || s.MaxMS != 100 || s.AvgMS != 50.5 {
		t.Fatalf("Summary() = %+v", s)
	}
	if names := c.Stages(); len(names) != 1 || names[0] != StageSimilarity {
		t.Fatalf("Stages() = %v", names)
	}
}

func TestMultiAndMeasure(t *testing.T) {
	a, b := NewTimings(), NewCollector()
	sink := Multi{a, b, nil, Nop{}}
	Measure(sink, StageWebSearch)()

	if _, ok := a.Map()["web_search_ms"]; !ok {
		t.Fatalf("timings missing web_search_ms")
	}
	if b.Summary()[StageWebSearch].Count != 1 {
		t.Fatalf("collector missing web_search")
	}
	Measure(nil, StageWebSearch)()
}

func TestSaveWorkbook(t *testing.T) {
	c := NewCollector()
	c.Record(StageOCR, 4*time.Millisecond)
	c.Record(StageOCR, 2*time.Millisecond)
	c.Record(StageEmbedding, time.Millisecond)

	path := filepath.Join(t.TempDir(), "metrics.xlsx")
	if err := c.SaveWorkbook(path); err != nil {
		t.Fatalf("SaveWorkbook() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Summary")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "Stage" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][0] != StageEmbedding || rows[2][0] != StageOCR || rows[2][1] != "2" || rows[2][2] != "3" {
		t.Fatalf("rows = %v", rows)
	}
}
