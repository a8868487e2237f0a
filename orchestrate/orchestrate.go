// Package orchestrate keeps one tokenizer per installed dictionary, fans
// parse requests out to them and restarts the whole set when one fails.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"mecabbridge/metrics"
	"mecabbridge/model"
)

var (
	// ErrUnknownDictionary is returned when a request names a dictionary
	// that is not configured or has no running tokenizer.
	ErrUnknownDictionary = errors.New("orchestrate: dictionary not available")
	// ErrRestartThrottled is returned when a failure could not be retried
	// because the restart budget is spent.
	ErrRestartThrottled = errors.New("orchestrate: restart budget exhausted")
)

// Parser analyses text with one dictionary.
type Parser interface {
	Parse(ctx context.Context, text string) (model.ParseResult, error)
	Close() error
}

// StartFunc starts a Parser for a dictionary whose data directory exists.
type StartFunc func(name string, schema model.Schema) (Parser, error)

// Options configures an Orchestrator.
type Options struct {
	Dictionaries model.Dictionaries
	// DataDir holds one subdirectory per installed dictionary.
	DataDir string
	Start   StartFunc
	// Concurrency bounds how many dictionaries analyse one request at the
	// same time. Values below 1 mean one at a time.
	Concurrency int
	// RestartLimiter, if set, must allow a restart before a failed parse
	// is retried.
	RestartLimiter *rate.Limiter
	Metrics        *metrics.Metrics
}

// Orchestrator owns the set of running tokenizers.
type Orchestrator struct {
	opts Options

	mu      sync.RWMutex
	parsers map[string]Parser
}

// New starts a tokenizer for every configured dictionary that is installed.
// Dictionaries without data, or whose tokenizer fails to start, are left out.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{opts: opts}
	o.mu.Lock()
	o.startLocked()
	o.mu.Unlock()
	return o
}

// Names returns the dictionaries with a running tokenizer, sorted.
func (o *Orchestrator) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return sortedNames(o.parsers)
}

// Parse analyses text with the named dictionaries, or with every running
// one when names is empty. If a tokenizer fails, all tokenizers are
// restarted and the call is retried once; the retry's outcome is returned.
func (o *Orchestrator) Parse(ctx context.Context, text string, names []string) (map[string]model.ParseResult, error) {
	out, err := o.parse(ctx, text, names)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, ErrUnknownDictionary) || ctx.Err() != nil {
		return nil, err
	}

	klog.ErrorS(err, "Tokenizer failed, restarting engines")
	if lim := o.opts.RestartLimiter; lim != nil && !lim.Allow() {
		return nil, fmt.Errorf("%w: %w", ErrRestartThrottled, err)
	}
	o.Reload()

	out, retryErr := o.parse(ctx, text, names)
	if retryErr != nil {
		return nil, fmt.Errorf("orchestrate: retry after restart: %w (first failure: %v)", retryErr, err)
	}
	return out, nil
}

func (o *Orchestrator) parse(ctx context.Context, text string, names []string) (map[string]model.ParseResult, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	selected, err := o.selectLocked(names)
	if err != nil {
		return nil, err
	}

	limit := o.opts.Concurrency
	if limit < 1 {
		limit = 1
	}
	var (
		resMu   sync.Mutex
		results = make(map[string]model.ParseResult, len(selected))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, name := range selected {
		name := name
		p := o.parsers[name]
		g.Go(func() error {
			res, err := p.Parse(gctx, text)
			if err != nil {
				return fmt.Errorf("orchestrate: %s: %w", name, err)
			}
			resMu.Lock()
			results[name] = res
			resMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) selectLocked(names []string) ([]string, error) {
	if len(names) == 0 {
		return sortedNames(o.parsers), nil
	}
	seen := make(map[string]bool, len(names))
	selected := make([]string, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := o.parsers[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDictionary, name)
		}
		selected = append(selected, name)
	}
	return selected, nil
}

// Reload stops every tokenizer and starts them again from what is
// installed now.
func (o *Orchestrator) Reload() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
	o.startLocked()
	o.opts.Metrics.EngineRestarted()
}

// Close stops every tokenizer.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
	return nil
}

func (o *Orchestrator) installed(name string) bool {
	fi, err := os.Stat(filepath.Join(o.opts.DataDir, name))
	return err == nil && fi.IsDir()
}

func (o *Orchestrator) startLocked() {
	parsers := make(map[string]Parser, len(o.opts.Dictionaries))
	for _, name := range o.opts.Dictionaries.Names() {
		if !o.installed(name) {
			klog.V(2).InfoS("Dictionary not installed", "dictionary", name)
			continue
		}
		p, err := o.opts.Start(name, o.opts.Dictionaries[name])
		if err != nil {
			klog.ErrorS(err, "Could not start tokenizer", "dictionary", name)
			continue
		}
		parsers[name] = p
	}
	o.parsers = parsers
	o.opts.Metrics.SetEnginesLive(len(parsers))
	klog.InfoS("Tokenizers running", "dictionaries", sortedNames(parsers))
}

func (o *Orchestrator) stopLocked() {
	for name, p := range o.parsers {
		if err := p.Close(); err != nil {
			klog.ErrorS(err, "Stopping tokenizer", "dictionary", name)
		}
	}
	o.parsers = nil
	o.opts.Metrics.SetEnginesLive(0)
}

func sortedNames(parsers map[string]Parser) []string {
	names := make([]string, 0, len(parsers))
	for name := range parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
