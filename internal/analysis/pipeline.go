package analysis

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
	"github.com/shaniKupiec/LiveSentiment-sub000/internal/metrics"
)

const (
	// minAnalyzableLength is the trimmed length below which a response is
	// not worth sending to the provider.
	minAnalyzableLength = 3

	analysisTimeout = 30 * time.Second
	stopTimeout     = 15 * time.Second
)

// Deduper checks whether an identical submission was already seen inside the
// debounce window. Optional; nil disables the check and keeps the upstream
// last-write-wins behavior.
type Deduper interface {
	FirstSeen(ctx context.Context, questionID uuid.UUID, sessionID, value string) (bool, error)
}

type analysisTask struct {
	responseID     uuid.UUID
	questionID     uuid.UUID
	presentationID uuid.UUID
	text           string
	opts           domain.AnalysisOptions
}

// Pipeline is the response ingestion and enrichment pipeline.
type Pipeline struct {
	questions domain.QuestionRepository
	responses domain.ResponseRepository
	analyzer  domain.Analyzer
	publisher domain.Publisher
	deduper   Deduper
	limiter   *sessionLimiter
	clock     clockwork.Clock

	tasks    chan analysisTask
	workers  int
	workerWg sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// Options tunes the pipeline. Zero values fall back to sensible defaults.
type Options struct {
	Workers       int
	QueueSize     int
	RatePerSecond float64
	Burst         int
	Deduper       Deduper
}

func NewPipeline(questions domain.QuestionRepository, responses domain.ResponseRepository, analyzer domain.Analyzer, publisher domain.Publisher, clock clockwork.Clock, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 256
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 1
	}
	if opts.Burst < 1 {
		opts.Burst = 5
	}

	p := &Pipeline{
		questions: questions,
		responses: responses,
		analyzer:  analyzer,
		publisher: publisher,
		deduper:   opts.Deduper,
		limiter:   newSessionLimiter(opts.RatePerSecond, opts.Burst, clock),
		clock:     clock,
		tasks:     make(chan analysisTask, opts.QueueSize),
		workers:   opts.Workers,
		stopped:   make(chan struct{}),
	}

	p.workerWg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go p.worker()
	}
	return p
}

// SubmitResponse validates and persists a submission for the currently active
// question, announces it to the presenter group, and dispatches enrichment in
// the background. It returns as soon as the row is committed; the caller
// never waits on analysis latency.
func (p *Pipeline) SubmitResponse(ctx context.Context, questionID uuid.UUID, sessionID, value string) (uuid.UUID, error) {
	question, err := p.questions.GetByID(ctx, questionID)
	if err != nil {
		return uuid.Nil, err
	}
	if !question.IsLive {
		metrics.ResponsesRejectedTotal.WithLabelValues("question_not_active").Inc()
		return uuid.Nil, domain.ErrQuestionNotActive
	}

	if question.Config != nil {
		if err := question.Config.ValidateValue(value); err != nil {
			metrics.ResponsesRejectedTotal.WithLabelValues("invalid_value").Inc()
			return uuid.Nil, err
		}
	}

	if !p.limiter.Allow(sessionID) {
		metrics.ResponsesRejectedTotal.WithLabelValues("rate_limited").Inc()
		return uuid.Nil, domain.ErrRateLimited
	}

	if p.deduper != nil {
		first, err := p.deduper.FirstSeen(ctx, questionID, sessionID, value)
		if err != nil {
			// Debounce is best-effort protection; a broken check must not
			// drop the submission.
			slog.Warn("Submission debounce check failed", "question_id", questionID.String(), "error", err)
		} else if !first {
			metrics.ResponsesRejectedTotal.WithLabelValues("duplicate").Inc()
			return uuid.Nil, domain.ErrDuplicateResponse
		}
	}

	response := &domain.Response{
		ID:         uuid.New(),
		QuestionID: questionID,
		SessionID:  sessionID,
		Value:      value,
		CreatedAt:  p.clock.Now().UTC(),
	}
	if err := p.responses.Insert(ctx, response); err != nil {
		return uuid.Nil, err
	}
	metrics.ResponsesAcceptedTotal.Inc()

	// ResponseReceived goes out before any enrichment is even enqueued, so
	// it always precedes the response's own NLPAnalysisCompleted.
	p.publisher.ToPresenter(question.PresentationID, domain.NewEvent(domain.EventResponseReceived, domain.ResponseReceivedPayload{
		PresentationID: question.PresentationID,
		QuestionID:     questionID,
		ResponseID:     response.ID,
		SessionID:      sessionID,
		Value:          value,
		ReceivedAt:     response.CreatedAt,
	}))

	p.dispatch(question, response)
	return response.ID, nil
}

// dispatch enqueues an analysis task if the response is eligible. An
// ineligible response keeps analysisCompleted false permanently; that is
// not an error state.
func (p *Pipeline) dispatch(question *domain.Question, response *domain.Response) {
	opts, eligible := eligibility(question, response.Value)
	if !eligible {
		metrics.AnalysisTasksTotal.WithLabelValues("skipped").Inc()
		return
	}

	task := analysisTask{
		responseID:     response.ID,
		questionID:     question.ID,
		presentationID: question.PresentationID,
		text:           response.Value,
		opts:           opts,
	}

	select {
	case p.tasks <- task:
		metrics.AnalysisQueueDepth.Set(float64(len(p.tasks)))
	default:
		// Queue full: the response stays valid, the enrichment is lost.
		metrics.AnalysisTasksTotal.WithLabelValues("dropped").Inc()
		slog.Warn("Analysis queue full, dropping task", "response_id", response.ID.String())
		p.recordFailure(task, "analysis queue full")
	}
}

// eligibility decides whether a response value goes to the provider: only
// free-text question types with at least one enrichment flag, and only
// values of trimmed length >= 3.
func eligibility(question *domain.Question, value string) (domain.AnalysisOptions, bool) {
	if !question.Type.FreeText() || question.Config == nil {
		return domain.AnalysisOptions{}, false
	}
	opts := question.Config.AnalysisOptions()
	if !opts.Enabled() {
		return domain.AnalysisOptions{}, false
	}
	if len(strings.TrimSpace(value)) < minAnalyzableLength {
		return domain.AnalysisOptions{}, false
	}
	return opts, true
}

func (p *Pipeline) worker() {
	defer p.workerWg.Done()
	for task := range p.tasks {
		metrics.AnalysisQueueDepth.Set(float64(len(p.tasks)))
		p.analyzeOne(task)
	}
}

// analyzeOne runs a single enrichment task and records its outcome. Failures
// are non-fatal: the response row keeps analysisCompleted=false with the
// error message, and the presenter still learns about the attempt.
func (p *Pipeline) analyzeOne(task analysisTask) {
	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()

	start := p.clock.Now()
	results, err := p.analyzer.Analyze(ctx, task.text, task.opts)
	metrics.AnalysisDuration.Observe(p.clock.Since(start).Seconds())

	if err != nil {
		metrics.AnalysisTasksTotal.WithLabelValues("failed").Inc()
		slog.Warn("Analysis failed", "response_id", task.responseID.String(), "error", err)
		p.recordFailure(task, err.Error())
		return
	}

	if err := p.responses.SetAnalysis(ctx, task.responseID, results, p.analyzer.Provider()); err != nil {
		metrics.AnalysisTasksTotal.WithLabelValues("failed").Inc()
		slog.Error("Failed to persist analysis results", "response_id", task.responseID.String(), "error", err)
		return
	}

	metrics.AnalysisTasksTotal.WithLabelValues("completed").Inc()
	p.publisher.ToPresenter(task.presentationID, domain.NewEvent(domain.EventNLPAnalysisCompleted, domain.AnalysisCompletedPayload{
		QuestionID: task.questionID,
		ResponseID: task.responseID,
		Provider:   p.analyzer.Provider(),
		Results:    results,
	}))
}

func (p *Pipeline) recordFailure(task analysisTask, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.responses.SetAnalysisError(ctx, task.responseID, message); err != nil {
		slog.Error("Failed to record analysis error", "response_id", task.responseID.String(), "error", err)
	}
	p.publisher.ToPresenter(task.presentationID, domain.NewEvent(domain.EventNLPAnalysisCompleted, domain.AnalysisCompletedPayload{
		QuestionID: task.questionID,
		ResponseID: task.responseID,
		Failed:     true,
		Error:      message,
	}))
}

// ReanalyzeQuestion clears prior analysis state for every response of a
// question and re-runs the per-response task concurrently. It blocks until
// the batch finishes and returns the number of successful enrichments.
func (p *Pipeline) ReanalyzeQuestion(ctx context.Context, questionID uuid.UUID) (int, error) {
	question, err := p.questions.GetByID(ctx, questionID)
	if err != nil {
		return 0, err
	}

	responses, err := p.responses.ListByQuestion(ctx, questionID)
	if err != nil {
		return 0, err
	}

	// Partial failures retry from a clean state, not merged into old results.
	if err := p.responses.ClearAnalysis(ctx, questionID); err != nil {
		return 0, err
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		// Bound batch concurrency to the pool's worker budget.
		semaphore = make(chan struct{}, p.workers)
	)
	for _, response := range responses {
		opts, eligible := eligibility(question, response.Value)
		if !eligible {
			continue
		}

		task := analysisTask{
			responseID:     response.ID,
			questionID:     question.ID,
			presentationID: question.PresentationID,
			text:           response.Value,
			opts:           opts,
		}
		wg.Add(1)
		semaphore <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()
			if p.reanalyzeOne(task) {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	slog.Info("Batch re-analysis finished", "question_id", questionID.String(), "responses", len(responses), "succeeded", succeeded.Load())
	return int(succeeded.Load()), nil
}

// reanalyzeOne is analyzeOne with a success report for batch counting.
func (p *Pipeline) reanalyzeOne(task analysisTask) bool {
	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()

	start := p.clock.Now()
	results, err := p.analyzer.Analyze(ctx, task.text, task.opts)
	metrics.AnalysisDuration.Observe(p.clock.Since(start).Seconds())

	if err != nil {
		metrics.AnalysisTasksTotal.WithLabelValues("failed").Inc()
		p.recordFailure(task, err.Error())
		return false
	}
	if err := p.responses.SetAnalysis(ctx, task.responseID, results, p.analyzer.Provider()); err != nil {
		metrics.AnalysisTasksTotal.WithLabelValues("failed").Inc()
		slog.Error("Failed to persist analysis results", "response_id", task.responseID.String(), "error", err)
		return false
	}

	metrics.AnalysisTasksTotal.WithLabelValues("completed").Inc()
	p.publisher.ToPresenter(task.presentationID, domain.NewEvent(domain.EventNLPAnalysisCompleted, domain.AnalysisCompletedPayload{
		QuestionID: task.questionID,
		ResponseID: task.responseID,
		Provider:   p.analyzer.Provider(),
		Results:    results,
	}))
	return true
}

// Stop drains the worker pool, waiting up to the stop timeout for in-flight
// analyses to finish.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.tasks)

		finished := make(chan struct{})
		go func() {
			p.workerWg.Wait()
			close(finished)
		}()

		timer := p.clock.NewTimer(stopTimeout)
		defer timer.Stop()

		select {
		case <-finished:
			slog.Info("Analysis pipeline stopped gracefully")
		case <-timer.Chan():
			slog.Warn("Analysis pipeline stop timeout exceeded", "timeout", stopTimeout)
		}
		close(p.stopped)
	})
}
