// Package research runs the search, scrape and write pipeline behind a
// topic-keyed cache.
package research

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dotcommander/yar/internal/store"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyTopic is returned for topics that are blank after trimming.
	ErrEmptyTopic = errors.New("topic is empty")
	// ErrWriterFailure wraps any error raised while producing the report.
	ErrWriterFailure = errors.New("report writer failed")
	// ErrEmptyReport is returned when the writer finishes without any text.
	ErrEmptyReport = errors.New("writer produced an empty report")
)

// DefaultScrapeConcurrency is the number of articles scraped at once.
const DefaultScrapeConcurrency = 4

// NoArticlesMessage is the CompletedEmpty text when search finds nothing.
func NoArticlesMessage(topic string) string {
	return "Sorry, could not find any articles on the topic: " + topic
}

// NoContentMessage is the CompletedEmpty text when no article could be read.
func NoContentMessage(topic string) string {
	return "Sorry, could not extract any article content on the topic: " + topic
}

// Request describes one research run.
type Request struct {
	Topic           string
	RunID           string
	UseSearchCache  bool
	UseScrapeCache  bool
	UseCachedReport bool
}

// Orchestrator coordinates the providers and the cache.
type Orchestrator struct {
	cache       *store.Store
	search      SearchProvider
	scrape      ScrapeProvider
	write       WriterProvider
	retry       RetryPolicy
	sleeper     Sleeper
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryPolicy overrides the search retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithSleeper overrides how the orchestrator waits between search attempts.
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) { o.sleeper = s }
}

// WithScrapeConcurrency bounds concurrent scrapes. Values below 1 mean 1.
func WithScrapeConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n < 1 {
			n = 1
		}
		o.concurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator. cache must not be nil.
func New(cache *store.Store, search SearchProvider, scrape ScrapeProvider, write WriterProvider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:       cache,
		search:      search,
		scrape:      scrape,
		write:       write,
		retry:       DefaultRetryPolicy(),
		sleeper:     DefaultSleeper,
		concurrency: DefaultScrapeConcurrency,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run returns the lazy event sequence for req. The sequence ends after the
// first Completed, CompletedEmpty or Failed event, or as soon as the consumer
// stops iterating. It is not safe to iterate the same sequence twice.
func (o *Orchestrator) Run(ctx context.Context, req Request) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		r := &run{
			o:     o,
			ctx:   ctx,
			req:   req,
			topic: strings.TrimSpace(req.Topic),
			key:   NormalizeTopic(req.Topic),
			yield: yield,
			log:   o.logger.With("run", req.RunID, "topic", NormalizeTopic(req.Topic)),
		}
		r.execute()
	}
}

type run struct {
	o     *Orchestrator
	ctx   context.Context
	req   Request
	topic string
	key   string
	yield func(Event) bool
	log   *slog.Logger
}

func (r *run) emit(e Event) bool {
	e.RunID = r.req.RunID
	e.Timestamp = r.o.now()
	return r.yield(e)
}

func (r *run) progress(stage Stage, text string, cached bool, articles int) bool {
	return r.emit(Event{Type: EventProgress, Stage: stage, Text: text, Cached: cached, Articles: articles})
}

func (r *run) fail(stage Stage, err error) {
	r.log.Error("research failed", "stage", stage, "err", err)
	r.emit(Event{Type: EventFailed, Stage: stage, Err: err})
}

func (r *run) empty(stage Stage, text string) {
	r.log.Info("research finished without a report", "stage", stage)
	r.emit(Event{Type: EventCompletedEmpty, Stage: stage, Text: text})
}

func (r *run) execute() {
	if r.key == "" {
		r.fail(StageReport, ErrEmptyTopic)
		return
	}

	if r.req.UseCachedReport {
		if report, ok := loadCached[string](r, store.Reports); ok && strings.TrimSpace(report) != "" {
			r.log.Info("serving cached report")
			r.emit(Event{Type: EventCompleted, Stage: StageReport, Text: report, Cached: true})
			return
		}
	}

	results, ok := r.searchResults()
	if !ok {
		return
	}
	if len(results.Articles) == 0 {
		r.empty(StageSearch, NoArticlesMessage(r.topic))
		return
	}

	articles, ok := r.scrapedArticles(results)
	if !ok {
		return
	}
	usable := make(map[string]ScrapedArticle, len(articles))
	for url, a := range articles {
		if a.HasContent() {
			usable[url] = a
		}
	}
	if len(usable) == 0 {
		r.empty(StageScrape, NoContentMessage(r.topic))
		return
	}

	r.writeReport(usable)
}

// searchResults returns false when the run has already ended.
func (r *run) searchResults() (SearchResultSet, bool) {
	if r.req.UseSearchCache {
		if cached, ok := loadCached[SearchResultSet](r, store.SearchResults); ok && len(cached.Articles) > 0 {
			r.log.Info("using cached search results", "articles", len(cached.Articles))
			return cached, r.progress(StageSearch, "Found cached search results", true, len(cached.Articles))
		}
	}

	if !r.progress(StageSearch, "Searching the web", false, 0) {
		return SearchResultSet{}, false
	}

	n := r.o.retry.attempts()
	for attempt := 1; attempt <= n; attempt++ {
		if err := r.ctx.Err(); err != nil {
			r.fail(StageSearch, err)
			return SearchResultSet{}, false
		}

		results, err := r.o.search.Search(r.ctx, r.topic)
		if err == nil {
			r.log.Info("search finished", "attempt", attempt, "articles", len(results.Articles))
			if len(results.Articles) > 0 {
				if err := store.Save(r.o.cache, store.SearchResults, r.key, results); err != nil {
					r.log.Warn("could not cache search results", "err", err)
				}
			}
			return results, true
		}

		r.log.Warn("search attempt failed", "attempt", attempt, "max", n, "err", err)
		if attempt < n {
			if err := r.o.sleeper.Sleep(r.ctx, r.o.retry.Backoff.DelayForAttempt(attempt)); err != nil {
				r.fail(StageSearch, err)
				return SearchResultSet{}, false
			}
		}
	}

	r.log.Error("search failed after all attempts", "attempts", n)
	return SearchResultSet{}, true
}

// scrapedArticles returns false when the run has already ended.
func (r *run) scrapedArticles(results SearchResultSet) (map[string]ScrapedArticle, bool) {
	if r.req.UseScrapeCache {
		if cached, ok := loadCached[map[string]ScrapedArticle](r, store.ScrapedArticles); ok && len(cached) > 0 {
			r.log.Info("using cached articles", "articles", len(cached))
			return cached, r.progress(StageScrape, "Found cached articles", true, len(cached))
		}
	}

	refs := uniqueReferences(results.Articles)
	if !r.progress(StageScrape, "Reading articles", false, len(refs)) {
		return nil, false
	}

	var (
		mu       sync.Mutex
		articles = make(map[string]ScrapedArticle, len(refs))
	)
	g, gctx := errgroup.WithContext(r.ctx)
	g.SetLimit(r.o.concurrency)
	for _, ref := range refs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			a := withReference(r.o.scrape.Scrape(gctx, ref.URL), ref)
			if !a.HasContent() {
				r.log.Warn("article has no content", "url", ref.URL)
				return nil
			}
			mu.Lock()
			articles[ref.URL] = a
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := r.ctx.Err(); err != nil {
		r.fail(StageScrape, err)
		return nil, false
	}

	r.log.Info("scraping finished", "requested", len(refs), "scraped", len(articles))
	if len(articles) > 0 {
		if err := store.Save(r.o.cache, store.ScrapedArticles, r.key, articles); err != nil {
			r.log.Warn("could not cache scraped articles", "err", err)
		}
	}
	return articles, true
}

func (r *run) writeReport(articles map[string]ScrapedArticle) {
	if !r.progress(StageWrite, "Writing the report", false, len(articles)) {
		return
	}

	stream, err := r.o.write.Write(r.ctx, r.topic, articles)
	if err != nil {
		r.fail(StageWrite, fmt.Errorf("%w: %w", ErrWriterFailure, err))
		return
	}
	defer stream.Close() //nolint:errcheck

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if !r.emit(Event{Type: EventPartialText, Stage: StageWrite, Text: chunk}) {
			return
		}
	}
	if err := stream.Err(); err != nil {
		r.fail(StageWrite, fmt.Errorf("%w: %w", ErrWriterFailure, err))
		return
	}

	report := sb.String()
	if strings.TrimSpace(report) == "" {
		r.fail(StageWrite, fmt.Errorf("%w: %w", ErrWriterFailure, ErrEmptyReport))
		return
	}
	if err := store.Save(r.o.cache, store.Reports, r.key, report); err != nil {
		r.log.Warn("could not cache report", "err", err)
	}
	r.log.Info("report written", "articles", len(articles), "bytes", len(report))
	r.emit(Event{Type: EventCompleted, Stage: StageWrite, Text: report, Articles: len(articles)})
}

// loadCached treats unreadable entries as misses.
func loadCached[T any](r *run, ns store.Namespace) (T, bool) {
	v, ok, err := store.Load[T](r.o.cache, ns, r.key)
	if err != nil {
		r.log.Warn("ignoring unreadable cache entry", "namespace", ns, "err", err)
		var zero T
		return zero, false
	}
	return v, ok
}

func uniqueReferences(refs []ArticleReference) []ArticleReference {
	seen := make(map[string]struct{}, len(refs))
	out := make([]ArticleReference, 0, len(refs))
	for _, ref := range refs {
		url := strings.TrimSpace(ref.URL)
		if url == "" {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		ref.URL = url
		out = append(out, ref)
	}
	return out
}

func withReference(a ScrapedArticle, ref ArticleReference) ScrapedArticle {
	a.URL = ref.URL
	if strings.TrimSpace(a.Title) == "" {
		a.Title = ref.Title
	}
	if strings.TrimSpace(a.Summary) == "" {
		a.Summary = ref.Summary
	}
	return a
}
