// Package workflow runs one question turn through
// LoadIndex -> Retrieve -> Synthesize -> {WebFallback | Done}.
package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ocr-rag/internal/chromemdb"
	"ocr-rag/internal/history"
	"ocr-rag/internal/metrics"
	"ocr-rag/internal/models"
	"ocr-rag/internal/rag"
	"ocr-rag/internal/websearch"
)

// Searcher is a loaded session index.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]models.Document, error)
}

type IndexLoader interface {
	Load(ctx context.Context, sessionID string) (Searcher, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, docs []models.Document, conversation string, ct rag.ContextType) string
}

type WebSearcher interface {
	Search(ctx context.Context, query string, excludedDomains []string, maxResults int) ([]websearch.Result, error)
}

// VectorDBLoader adapts the chromem-go manager to IndexLoader.
type VectorDBLoader struct {
	Manager *chromemdb.VectorDBManager
}

func (l VectorDBLoader) Load(ctx context.Context, sessionID string) (Searcher, error) {
	idx, err := l.Manager.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

type Step int

const (
	StepLoadIndex Step = iota
	StepRetrieve
	StepSynthesize
	StepWebFallback
	StepDone
)

var stepNames = [...]string{"load_index", "retrieve", "synthesize", "web_fallback", "done"}

func (s Step) String() string {
	if int(s) < len(stepNames) {
		return stepNames[s]
	}
	return "unknown"
}

// Branch is the outcome of inspecting a local answer.
type Branch int

const (
	BranchEnd Branch = iota
	BranchSearch
)

// Decide returns BranchSearch when the answer contains a not-found phrase,
// compared case-insensitively.
func Decide(answer string) Branch {
	lower := strings.ToLower(answer)
	for _, phrase := range models.NotFoundPhrases {
		if strings.Contains(lower, phrase) {
			return BranchSearch
		}
	}
	return BranchEnd
}

// State threads through the stages of one turn.
type State struct {
	Query     string
	SessionID string
	// prior turns, oldest first
	Messages    []models.HistoryTurn
	Answer      string
	Docs        []models.Document
	Timestamp   string
	WebFallback bool

	index        Searcher
	conversation string
}

type Options struct {
	Loader      IndexLoader
	Synthesizer Synthesizer
	// nil disables fallback; a search then reports as failed
	Web            WebSearcher
	History        history.Store
	TopK           int
	ModelLabel     string
	ExcludeDomains []string
	MaxWebResults  int
}

type Orchestrator struct {
	opts Options
	now  func() time.Time
}

func New(opts Options) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.MaxWebResults <= 0 {
		opts.MaxWebResults = 3
	}
	return &Orchestrator{opts: opts, now: time.Now}
}

// Run executes the stages in order. Only a failed index load aborts the
// turn; every other failure becomes answer text.
func (o *Orchestrator) Run(ctx context.Context, st *State, sink metrics.Sink) error {
	if sink == nil {
		sink = metrics.Nop{}
	}
	logger := log.With().Str("session_id", st.SessionID).Logger()

	step := StepLoadIndex
	for step != StepDone {
		logger.Debug().Stringer("step", step).Msg("Workflow step")
		switch step {
		case StepLoadIndex:
			done := metrics.Measure(sink, metrics.StageVectorLoad)
			idx, err := o.opts.Loader.Load(ctx, st.SessionID)
			done()
			if err != nil {
				return err
			}
			st.index = idx
			step = StepRetrieve

		case StepRetrieve:
			done := metrics.Measure(sink, metrics.StageSimilarity)
			docs, err := st.index.Search(ctx, st.Query, o.opts.TopK)
			done()
			if err != nil {
				logger.Warn().Err(err).Msg("Similarity search failed, continuing without documents")
				docs = nil
			}
			st.Docs = docs
			step = StepSynthesize

		case StepSynthesize:
			st.conversation = rag.BuildConversationContext(st.Messages, st.Query)
			done := metrics.Measure(sink, metrics.StageLLMInference)
			st.Answer = o.opts.Synthesizer.Synthesize(ctx, st.Docs, st.conversation, rag.ContextLocal)
			done()
			st.Timestamp = o.now().Format(models.TimestampLayout)
			o.record(ctx, st, o.opts.ModelLabel, models.LocalSourceLabel)

			switch Decide(st.Answer) {
			case BranchSearch:
				step = StepWebFallback
			default:
				step = StepDone
			}

		case StepWebFallback:
			done := metrics.Measure(sink, metrics.StageWebSearch)
			st.Answer = o.webAnswer(ctx, st)
			done()
			st.WebFallback = true
			st.Timestamp = o.now().Format(models.TimestampLayout)
			o.record(ctx, st, models.WebModelLabel, models.WebSourceLabel)
			step = StepDone
		}
	}
	return nil
}

func (o *Orchestrator) webAnswer(ctx context.Context, st *State) string {
	if o.opts.Web == nil {
		return models.WebFailurePrefix + "web search is not configured"
	}
	results, err := o.opts.Web.Search(ctx, st.Query, o.opts.ExcludeDomains, o.opts.MaxWebResults)
	if err != nil {
		log.Warn().Err(err).Str("session_id", st.SessionID).Msg("Web search failed")
		return models.WebFailurePrefix + err.Error()
	}
	if len(results) == 0 {
		return models.NoWebResultsAnswer
	}
	return o.opts.Synthesizer.Synthesize(ctx, websearch.ToDocuments(results), st.conversation, rag.ContextWeb)
}

func (o *Orchestrator) record(ctx context.Context, st *State, modelLabel, sourceLabel string) {
	if o.opts.History == nil {
		return
	}
	turn := models.HistoryTurn{
		Question:    st.Query,
		Answer:      st.Answer,
		ModelLabel:  modelLabel,
		Timestamp:   st.Timestamp,
		SourceLabel: sourceLabel,
	}
	if err := o.opts.History.Append(ctx, st.SessionID, turn); err != nil {
		log.Error().Err(err).Str("session_id", st.SessionID).Msg("Failed to save history")
	}
}
