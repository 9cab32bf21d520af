package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/moviegraph/graph"
	"github.com/smallnest/moviegraph/log"
	"github.com/smallnest/moviegraph/store"
)

// Fixed answers.
const (
	NoResultsAnswer  = "Sorry, no relevant results found using vector search."
	EmptyInputAnswer = "Please enter a question about movies."

	failureAnswerFormat         = "Error processing query: %s"
	noRecommendationAnswerFmt   = "I couldn't find any movies matching '%s'. Our database might not have embeddings for all movies yet. Could you try a different query?"
	recommendFailureAnswerFmt   = "Sorry, I encountered an error: %s. Please try again."
	defaultJournalWriteDeadline = 5 * time.Second
)

// Stage is a state of the query pipeline.
type Stage string

const (
	StageEmbedding       Stage = "embedding"
	StageRetrieving      Stage = "retrieving"
	StageIntrospecting   Stage = "introspecting"
	StageComposingQuery  Stage = "composing_query"
	StageGeneratingQuery Stage = "generating_query"
	StageSanitizing      Stage = "sanitizing"
	StageExecuting       Stage = "executing"
	StageSummarizing     Stage = "summarizing"
	StageRecommending    Stage = "recommending"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)

// Mode selects the pipeline a request runs through.
type Mode string

const (
	// ModeAnswer generates and executes a Cypher query, then narrates its results.
	ModeAnswer Mode = "answer"
	// ModeRecommend narrates the vector search candidates directly.
	ModeRecommend Mode = "recommend"
)

// QueryState is the per-request state flowing through the pipeline graph.
type QueryState struct {
	RequestID  string
	Mode       Mode
	Question   string
	Stage      Stage
	Vector     []float32
	Candidates []Candidate
	Ontology   string
	Prompt     string
	RawQuery   string
	Query      string
	Records    []Record
	Answer     string

	// FailedStage is the stage that was running when the request failed.
	FailedStage Stage
	Err         error
}

// Result is the outcome of one request.
type Result struct {
	RequestID   string
	Mode        Mode
	Question    string
	Answer      string
	Query       string
	Candidates  []Candidate
	Records     []Record
	FailedStage Stage
	Err         error
	StartedAt   time.Time
	Duration    time.Duration
}

// Config tunes the orchestrator.
type Config struct {
	Index          VectorIndex
	TopK           int
	CallTimeout    time.Duration
	MaxResultChars int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Index:          DefaultVectorIndex(),
		TopK:           DefaultTopK,
		CallTimeout:    30 * time.Second,
		MaxResultChars: MaxResultChars,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the pipeline configuration. Zero fields keep their defaults.
func WithConfig(config Config) Option {
	return func(o *Orchestrator) {
		if config.Index.Name != "" {
			o.config.Index = config.Index
		}
		if config.TopK > 0 {
			o.config.TopK = config.TopK
		}
		if config.CallTimeout > 0 {
			o.config.CallTimeout = config.CallTimeout
		}
		if config.MaxResultChars > 0 {
			o.config.MaxResultChars = config.MaxResultChars
		}
	}
}

// WithSanitizer replaces the default FenceSanitizer.
func WithSanitizer(sanitizer Sanitizer) Option {
	return func(o *Orchestrator) {
		if sanitizer != nil {
			o.sanitizer = sanitizer
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTraceHooks registers hooks receiving the spans of every request.
func WithTraceHooks(hooks ...graph.TraceHook) Option {
	return func(o *Orchestrator) {
		o.hooks = append(o.hooks, hooks...)
	}
}

// WithJournal records every request in journal.
func WithJournal(journal store.Journal) Option {
	return func(o *Orchestrator) {
		o.journal = journal
	}
}

// Orchestrator runs the query-answering pipeline. It holds no per-request state and is safe
// for concurrent use.
type Orchestrator struct {
	db        GraphStore
	llm       LanguageModel
	config    Config
	sanitizer Sanitizer
	composer  QueryComposer
	logger    log.Logger
	hooks     []graph.TraceHook
	journal   store.Journal

	retriever    *VectorRetriever
	introspector *OntologyIntrospector

	answerGraph    *graph.StateRunnable[*QueryState]
	recommendGraph *graph.StateRunnable[*QueryState]
}

// NewOrchestrator wires the pipeline around an injected store, embedder and language model.
func NewOrchestrator(db GraphStore, embedder Embedder, llm LanguageModel, opts ...Option) (*Orchestrator, error) {
	if db == nil || embedder == nil || llm == nil {
		return nil, errors.New("graph store, embedder and language model are required")
	}

	o := &Orchestrator{
		db:        db,
		llm:       llm,
		config:    DefaultConfig(),
		sanitizer: FenceSanitizer{},
		logger:    log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.composer = QueryComposer{MaxResultChars: o.config.MaxResultChars}
	o.retriever = NewVectorRetriever(db, embedder, RetrievalConfig{
		Index:       o.config.Index,
		TopK:        o.config.TopK,
		CallTimeout: o.config.CallTimeout,
	})
	o.introspector = NewOntologyIntrospector(db, o.config.CallTimeout)

	var err error
	if o.answerGraph, err = o.buildAnswerGraph(); err != nil {
		return nil, fmt.Errorf("failed to compile answer pipeline: %w", err)
	}
	if o.recommendGraph, err = o.buildRecommendGraph(); err != nil {
		return nil, fmt.Errorf("failed to compile recommend pipeline: %w", err)
	}
	return o, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

// AnswerQuery answers a natural-language question. It never fails: every failure is
// described in the returned text.
func (o *Orchestrator) AnswerQuery(ctx context.Context, question string) string {
	return o.Run(ctx, ModeAnswer, question).Answer
}

// Recommend answers with a conversational recommendation of the closest movies.
func (o *Orchestrator) Recommend(ctx context.Context, question string) string {
	return o.Run(ctx, ModeRecommend, question).Answer
}

// Run executes one request and returns its full outcome. Result.Answer is never empty.
func (o *Orchestrator) Run(ctx context.Context, mode Mode, question string) *Result {
	state := &QueryState{
		RequestID: uuid.NewString(),
		Mode:      mode,
		Question:  strings.TrimSpace(question),
	}
	startedAt := time.Now()

	if state.Question == "" {
		state.Stage = StageDone
		state.Answer = EmptyInputAnswer
		return o.finish(ctx, state, startedAt)
	}

	runnable := o.answerGraph
	if mode == ModeRecommend {
		runnable = o.recommendGraph
	}

	tracer := graph.NewTracer(o.hooks...)
	tracer.SetMetadata("request_id", state.RequestID)
	tracer.SetMetadata("mode", string(mode))

	o.logger.Debug("[%s] %s: %q", state.RequestID, mode, state.Question)
	final, err := runnable.WithTracer(tracer).Invoke(ctx, state)
	if final != nil {
		state = final
	}
	if err != nil {
		o.fail(state, err)
	} else {
		state.Stage = StageDone
	}
	return o.finish(ctx, state, startedAt)
}

// Close releases the journal and the graph store.
func (o *Orchestrator) Close(ctx context.Context) error {
	var errs []error
	if o.journal != nil {
		if err := o.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if err := o.db.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close graph store: %w", err))
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) fail(state *QueryState, err error) {
	var nodeErr *graph.NodeError
	if errors.As(err, &nodeErr) {
		err = nodeErr.Err
	}

	state.FailedStage = state.Stage
	state.Stage = StageFailed
	state.Err = err

	o.logger.Warn("[%s] %s failed in %s: %v", state.RequestID, state.Mode, state.FailedStage, err)
	if state.Mode == ModeRecommend {
		state.Answer = fmt.Sprintf(recommendFailureAnswerFmt, err)
	} else {
		state.Answer = fmt.Sprintf(failureAnswerFormat, err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, state *QueryState, startedAt time.Time) *Result {
	result := &Result{
		RequestID:   state.RequestID,
		Mode:        state.Mode,
		Question:    state.Question,
		Answer:      state.Answer,
		Query:       state.Query,
		Candidates:  state.Candidates,
		Records:     state.Records,
		FailedStage: state.FailedStage,
		Err:         state.Err,
		StartedAt:   startedAt,
		Duration:    time.Since(startedAt),
	}
	o.record(ctx, result)
	return result
}

// record appends result to the journal after the answer is final. A journal failure is
// logged and never changes the answer.
func (o *Orchestrator) record(ctx context.Context, result *Result) {
	if o.journal == nil {
		return
	}

	entry := &store.Entry{
		ID:             result.RequestID,
		Mode:           string(result.Mode),
		Question:       result.Question,
		Query:          result.Query,
		CandidateCount: len(result.Candidates),
		ResultCount:    len(result.Records),
		Answer:         result.Answer,
		FailedStage:    string(result.FailedStage),
		StartedAt:      result.StartedAt,
		Duration:       result.Duration,
	}
	if result.Err != nil {
		entry.ErrorKind = string(KindOf(result.Err))
		entry.Error = result.Err.Error()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultJournalWriteDeadline)
	defer cancel()
	if err := o.journal.Append(writeCtx, entry); err != nil {
		o.logger.Warn("[%s] journal append failed: %v", result.RequestID, err)
	}
}

// stage wraps a pipeline step so the state always names the step that is running.
func (o *Orchestrator) stage(stage Stage, step func(ctx context.Context, state *QueryState) error) func(ctx context.Context, state *QueryState) (*QueryState, error) {
	return func(ctx context.Context, state *QueryState) (*QueryState, error) {
		state.Stage = stage
		o.logger.Debug("[%s] -> %s", state.RequestID, stage)
		return state, step(ctx, state)
	}
}

func (o *Orchestrator) buildAnswerGraph() (*graph.StateRunnable[*QueryState], error) {
	g := graph.NewStateGraph[*QueryState]()

	g.AddNode(string(StageEmbedding), "Embed the question", o.stage(StageEmbedding, o.embed))
	g.AddNode(string(StageRetrieving), "Search the vector index", o.stage(StageRetrieving, o.retrieve))
	g.AddNode(string(StageIntrospecting), "Describe the graph schema", o.stage(StageIntrospecting, o.introspect))
	g.AddNode(string(StageComposingQuery), "Build the query generation prompt", o.stage(StageComposingQuery, o.composeQuery))
	g.AddNode(string(StageGeneratingQuery), "Ask the LLM for Cypher", o.stage(StageGeneratingQuery, o.generateQuery))
	g.AddNode(string(StageSanitizing), "Clean the generated Cypher", o.stage(StageSanitizing, o.sanitize))
	g.AddNode(string(StageExecuting), "Run the generated Cypher", o.stage(StageExecuting, o.execute))
	g.AddNode(string(StageSummarizing), "Narrate the results", o.stage(StageSummarizing, o.summarize))

	g.SetEntryPoint(string(StageEmbedding))
	g.AddEdge(string(StageEmbedding), string(StageRetrieving))
	g.AddConditionalEdge(string(StageRetrieving), continueWithCandidates(StageIntrospecting))
	g.AddEdge(string(StageIntrospecting), string(StageComposingQuery))
	g.AddEdge(string(StageComposingQuery), string(StageGeneratingQuery))
	g.AddEdge(string(StageGeneratingQuery), string(StageSanitizing))
	g.AddEdge(string(StageSanitizing), string(StageExecuting))
	g.AddEdge(string(StageExecuting), string(StageSummarizing))
	g.AddEdge(string(StageSummarizing), graph.END)

	return g.Compile()
}

func (o *Orchestrator) buildRecommendGraph() (*graph.StateRunnable[*QueryState], error) {
	g := graph.NewStateGraph[*QueryState]()

	g.AddNode(string(StageEmbedding), "Embed the question", o.stage(StageEmbedding, o.embed))
	g.AddNode(string(StageRetrieving), "Search the vector index", o.stage(StageRetrieving, o.retrieve))
	g.AddNode(string(StageRecommending), "Narrate the candidates", o.stage(StageRecommending, o.recommend))

	g.SetEntryPoint(string(StageEmbedding))
	g.AddEdge(string(StageEmbedding), string(StageRetrieving))
	g.AddConditionalEdge(string(StageRetrieving), continueWithCandidates(StageRecommending))
	g.AddEdge(string(StageRecommending), graph.END)

	return g.Compile()
}

// continueWithCandidates ends the run with the no-results answer when retrieval found nothing.
func continueWithCandidates(next Stage) func(ctx context.Context, state *QueryState) string {
	return func(_ context.Context, state *QueryState) string {
		if len(state.Candidates) == 0 {
			if state.Mode == ModeRecommend {
				state.Answer = fmt.Sprintf(noRecommendationAnswerFmt, state.Question)
			} else {
				state.Answer = NoResultsAnswer
			}
			return graph.END
		}
		return string(next)
	}
}

func (o *Orchestrator) embed(ctx context.Context, state *QueryState) error {
	vector, err := o.retriever.Embed(ctx, state.Question)
	if err != nil {
		return err
	}
	state.Vector = vector
	return nil
}

func (o *Orchestrator) retrieve(ctx context.Context, state *QueryState) error {
	candidates, err := o.retriever.Search(ctx, state.Vector, o.config.TopK)
	if err != nil {
		return err
	}
	state.Candidates = candidates
	o.logger.Debug("[%s] %d candidates", state.RequestID, len(candidates))
	return nil
}

func (o *Orchestrator) introspect(ctx context.Context, state *QueryState) error {
	ontology, err := o.introspector.DescribeSchema(ctx)
	if err != nil {
		return err
	}
	state.Ontology = ontology
	return nil
}

func (o *Orchestrator) composeQuery(_ context.Context, state *QueryState) error {
	state.Prompt = o.composer.QueryGenerationPrompt(state.Question, o.composer.VectorContext(state.Candidates), state.Ontology)
	return nil
}

func (o *Orchestrator) generateQuery(ctx context.Context, state *QueryState) error {
	text, err := o.generate(ctx, state.Prompt)
	if err != nil {
		return newError(KindGeneration, err)
	}
	state.RawQuery = text
	return nil
}

func (o *Orchestrator) sanitize(_ context.Context, state *QueryState) error {
	query := o.sanitizer.Sanitize(state.RawQuery)
	if query == "" {
		return newError(KindGeneration, ErrEmptyQuery)
	}
	if !LooksLikeCypher(query) {
		return newError(KindGeneration, fmt.Errorf("%w: %q", ErrUnrecognizedQuery, Truncate(query, 80)))
	}
	state.Query = query
	o.logger.Info("[%s] generated cypher: %s", state.RequestID, query)
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, state *QueryState) error {
	callCtx, cancel := withCallTimeout(ctx, o.config.CallTimeout)
	defer cancel()

	records, err := o.db.ReadQuery(callCtx, state.Query, nil)
	if err != nil {
		return newError(KindExecution, timeoutCause(err, o.config.CallTimeout))
	}
	state.Records = records
	o.logger.Debug("[%s] %d records", state.RequestID, len(records))
	return nil
}

func (o *Orchestrator) summarize(ctx context.Context, state *QueryState) error {
	prompt := o.composer.SummaryPrompt(state.Question, state.Query, len(state.Records), o.composer.SerializeRecords(state.Records))
	answer, err := o.generate(ctx, prompt)
	if err != nil {
		return newError(KindSummarization, err)
	}
	state.Answer = answer
	return nil
}

func (o *Orchestrator) recommend(ctx context.Context, state *QueryState) error {
	answer, err := o.generate(ctx, o.composer.RecommendationPrompt(state.Question, state.Candidates))
	if err != nil {
		return newError(KindSummarization, err)
	}
	state.Answer = answer
	return nil
}

// generate calls the language model under the per-call deadline and rejects blank output.
func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := withCallTimeout(ctx, o.config.CallTimeout)
	defer cancel()

	text, err := o.llm.Generate(callCtx, prompt)
	if err != nil {
		return "", timeoutCause(err, o.config.CallTimeout)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
