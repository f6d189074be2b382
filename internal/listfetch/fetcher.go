package listfetch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/upstream"
)

// Loader fetches one page of a list endpoint.
type Loader interface {
	FetchList(ctx context.Context, token, path string, params url.Values) (*upstream.Page, error)
}

// Source names an entity list: its cache tag and endpoint, plus the page grant
// that gates it.
type Source struct {
	Tag     string
	Path    string
	Page    string
	PageURL string
	// Summarize optionally derives page totals shown next to the rows.
	Summarize func(rows []json.RawMessage) (interface{}, error)
}

type Options struct {
	DebounceWindow time.Duration
	FetchTimeout   time.Duration
	PageSize       int
}

// State is what a list view presents. Total and LastPage come straight from
// the backend.
type State struct {
	Rows      []json.RawMessage `json:"rows"`
	Total     int               `json:"total"`
	LastPage  int               `json:"last_page"`
	IsLoading bool              `json:"is_loading"`
	IsError   bool              `json:"is_error"`
	Error     string            `json:"error,omitempty"`
	Query     QueryState        `json:"query"`
	Err       error             `json:"-"`
}

// Fetcher drives one list view. Every distinct parameter tuple is loaded
// exactly once; only the result of the latest request is ever applied.
type Fetcher struct {
	mu        sync.Mutex
	source    Source
	token     string
	loader    Loader
	cache     *Cache
	timeout   time.Duration
	logger    *slog.Logger
	debouncer *Debouncer

	query    QueryState
	state    State
	loaded   Tuple
	hasTuple bool
	gen      uint64
	inflight int
	idle     chan struct{}
	closed   bool

	unsubscribe func()
}

func NewFetcher(source Source, token string, loader Loader, cache *Cache, opts Options, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = internal.DefaultPageSize
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = internal.DefaultFetchTimeout
	}

	idle := make(chan struct{})
	close(idle)

	f := &Fetcher{
		source:  source,
		token:   token,
		loader:  loader,
		cache:   cache,
		timeout: opts.FetchTimeout,
		logger:  logger.With("list", source.Tag),
		query:   QueryState{PageSize: opts.PageSize},
		idle:    idle,
	}
	f.debouncer = NewDebouncer(opts.DebounceWindow, f.applySearch)
	f.unsubscribe = cache.Subscribe(source.Tag, f.Refetch)

	f.mu.Lock()
	f.loadLocked(false)
	f.mu.Unlock()
	return f
}

func (f *Fetcher) SetPage(index int) {
	if index < 0 {
		index = 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query.PageIndex = index
	f.loadLocked(false)
}

func (f *Fetcher) SetPageSize(size int) {
	if size <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query.PageSize = size
	f.loadLocked(false)
}

// SetSearch records raw search input. It reaches the request only after the
// debounce window; the page index is left as is.
func (f *Fetcher) SetSearch(raw string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.query.SearchTerm = raw
	f.state.Query = f.query
	f.mu.Unlock()

	f.debouncer.Push(raw)
}

// FlushSearch applies pending search input without waiting for the window.
func (f *Fetcher) FlushSearch() {
	f.debouncer.Flush()
}

// SearchPending reports whether search input is still inside the window.
func (f *Fetcher) SearchPending() bool {
	return f.debouncer.Pending()
}

func (f *Fetcher) applySearch(term string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query.DebouncedSearchTerm = term
	f.loadLocked(false)
}

// Refetch reloads the current tuple from the backend, bypassing the cache.
func (f *Fetcher) Refetch() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadLocked(true)
}

func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.state
	s.Rows = append([]json.RawMessage(nil), f.state.Rows...)
	return s
}

// Await blocks until no load is in flight.
func (f *Fetcher) Await(ctx context.Context) error {
	f.mu.Lock()
	idle := f.idle
	f.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fetcher) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.gen++
	f.mu.Unlock()

	f.debouncer.Stop()
	f.unsubscribe()
}

func (f *Fetcher) loadLocked(force bool) {
	if f.closed {
		return
	}

	tuple := f.query.Tuple()
	f.state.Query = f.query
	if !force && f.hasTuple && f.loaded == tuple {
		return
	}
	f.loaded = tuple
	f.hasTuple = true
	f.gen++
	gen := f.gen
	query := f.query
	key := KeyFor(f.source.Tag, query)

	if !force {
		if page, ok := f.cache.Get(key); ok {
			f.applyPageLocked(page)
			return
		}
	}

	f.state.IsLoading = true
	f.state.IsError = false
	f.state.Error = ""
	f.state.Err = nil
	if f.inflight == 0 {
		f.idle = make(chan struct{})
	}
	f.inflight++

	go f.load(gen, key, query)
}

func (f *Fetcher) load(gen uint64, key Key, query QueryState) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	page, err := f.cache.Fetch(ctx, key, query.PageSize, func(ctx context.Context) (*upstream.Page, error) {
		return f.loader.FetchList(ctx, f.token, f.source.Path, query.Params())
	})

	f.mu.Lock()
	defer f.mu.Unlock()

	f.inflight--
	if f.inflight == 0 {
		close(f.idle)
	}

	if gen != f.gen {
		f.logger.Debug("discarding superseded list result", "page_index", query.PageIndex, "search", key.Search)
		return
	}

	if err != nil {
		f.logger.Warn("list load failed", "page_index", query.PageIndex, "error", err)
		f.state.Rows = nil
		f.state.Total = 0
		f.state.LastPage = 0
		f.state.IsLoading = false
		f.state.IsError = true
		f.state.Err = err
		f.state.Error = upstream.Message(err)
		return
	}
	f.applyPageLocked(page)
}

func (f *Fetcher) applyPageLocked(page *upstream.Page) {
	f.state.Rows = page.Rows
	f.state.Total = page.Total
	f.state.LastPage = page.LastPage
	f.state.IsLoading = false
	f.state.IsError = false
	f.state.Error = ""
	f.state.Err = nil
}
