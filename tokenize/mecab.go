// Package tokenize drives one MeCab-compatible tokenizer process per
// dictionary and turns its streamed output into structured tokens.
package tokenize

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"mecabbridge/metrics"
	"mecabbridge/model"
)

var (
	// ErrDictionaryMissing is returned by Start when the dictionary's data
	// directory does not exist.
	ErrDictionaryMissing = errors.New("tokenize: dictionary data directory missing")
	// ErrEngineExited means the engine closed its output mid-analysis.
	ErrEngineExited = errors.New("tokenize: engine exited")
	// ErrEngineTimeout means the engine produced no output within the read timeout.
	ErrEngineTimeout = errors.New("tokenize: engine stopped responding")
	// ErrEngineBroken is returned for every call after a failed one.
	ErrEngineBroken = errors.New("tokenize: engine unusable after earlier failure")
)

// Launcher holds what is needed to start an engine process for a dictionary.
// The engine is invoked as: Binary Args... -d DataDir/<name> [-r RCFile].
type Launcher struct {
	Binary      string
	Args        []string
	DataDir     string
	RCFile      string
	Env         []string
	Stderr      io.Writer
	ReadTimeout time.Duration
	Metrics     *metrics.Metrics
}

// DictionaryDir returns the data directory used for dictionary name.
func (l *Launcher) DictionaryDir(name string) string {
	return filepath.Join(l.DataDir, name)
}

// Start launches an engine for the named dictionary.
func (l *Launcher) Start(name string, schema model.Schema) (*Mecab, error) {
	m, err := l.start(name, schema)
	l.Metrics.EngineLaunched(name, err)
	return m, err
}

func (l *Launcher) start(name string, schema model.Schema) (*Mecab, error) {
	dir := l.DictionaryDir(name)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDictionaryMissing, dir)
	}

	args := append(append([]string(nil), l.Args...), "-d", dir)
	if l.RCFile != "" {
		args = append(args, "-r", l.RCFile)
	}
	cmd := exec.Command(l.Binary, args...)
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	configureProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("tokenize: stdin pipe for %s: %w", name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("tokenize: stdout pipe for %s: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("tokenize: start %s engine: %w", name, err)
	}

	m := &Mecab{
		name:        name,
		id:          uuid.NewString(),
		schema:      schema,
		cmd:         cmd,
		stdin:       stdin,
		in:          bufio.NewWriter(stdin),
		queue:       newLineQueue(),
		done:        make(chan struct{}),
		readTimeout: l.ReadTimeout,
		metrics:     l.Metrics,
	}
	go m.readOutput(stdout)
	klog.InfoS("Started tokenizer engine", "dictionary", name, "engine", m.id, "pid", cmd.Process.Pid)
	return m, nil
}

// Mecab owns one engine process. Parse calls are serialized so the output
// of one input line is never interleaved with another's.
type Mecab struct {
	name        string
	id          string
	schema      model.Schema
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	in          *bufio.Writer
	queue       *lineQueue
	done        chan struct{}
	readTimeout time.Duration
	metrics     *metrics.Metrics

	mu     sync.Mutex
	broken error

	closing   atomic.Bool
	closeOnce sync.Once
}

// Name returns the dictionary name.
func (m *Mecab) Name() string { return m.name }

func (m *Mecab) readOutput(r io.Reader) {
	defer close(m.done)
	defer m.queue.close()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			m.queue.push(strings.TrimRightFunc(line, unicode.IsSpace))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !m.closing.Load() {
				klog.ErrorS(err, "Reading tokenizer output", "dictionary", m.name, "engine", m.id)
			}
			return
		}
	}
}

// Parse analyses text. Whitespace and interpunct runs become separator
// tokens without involving the engine; every other run is sent to it.
func (m *Mecab) Parse(ctx context.Context, text string) (model.ParseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEngineBroken, m.name, m.broken)
	}

	start := time.Now()
	defer func() { m.metrics.ParseObserved(m.name, time.Since(start)) }()

	lines := splitLines(text)
	result := make(model.ParseResult, 0, len(lines))
	for _, text := range lines {
		line := model.Line{}
		for _, seg := range splitSegments(text) {
			if seg.separator {
				line = append(line, m.schema.SeparatorToken(seg.text))
				continue
			}
			toks, err := m.analyze(ctx, seg.text)
			if err != nil {
				m.broken = err
				return nil, err
			}
			line = append(line, toks...)
		}
		result = append(result, line)
	}
	return result, nil
}

func (m *Mecab) analyze(ctx context.Context, text string) ([]model.Token, error) {
	if _, err := m.in.WriteString(text + "\n"); err != nil {
		return nil, fmt.Errorf("tokenize: write to %s engine: %w", m.name, err)
	}
	if err := m.in.Flush(); err != nil {
		return nil, fmt.Errorf("tokenize: write to %s engine: %w", m.name, err)
	}

	var toks []model.Token
	for {
		out, err := m.queue.pop(ctx, m.readTimeout)
		switch {
		case errors.Is(err, errQueueClosed):
			return nil, fmt.Errorf("%w: %s: output closed before %s", ErrEngineExited, m.name, eosMarker)
		case errors.Is(err, errQueueTimeout):
			return nil, fmt.Errorf("%w: %s: no output after %s", ErrEngineTimeout, m.name, m.readTimeout)
		case err != nil:
			return nil, err
		}
		if out == eosMarker {
			return toks, nil
		}
		tok, err := parseOutputLine(out, m.schema)
		if err != nil {
			klog.ErrorS(err, "Skipping malformed tokenizer output", "dictionary", m.name, "engine", m.id)
			m.metrics.MalformedLine(m.name)
			continue
		}
		toks = append(toks, tok)
	}
}

// Close kills the engine and reaps it. It is safe to call more than once and
// does not wait for an in-flight Parse.
func (m *Mecab) Close() error {
	m.closeOnce.Do(func() {
		m.closing.Store(true)
		_ = m.stdin.Close()
		terminateProcess(m.cmd)
		select {
		case <-m.done:
		case <-time.After(2 * time.Second):
			klog.InfoS("Tokenizer output still open after kill", "dictionary", m.name, "engine", m.id)
		}
		_ = m.cmd.Wait()
		klog.V(2).InfoS("Stopped tokenizer engine", "dictionary", m.name, "engine", m.id)
	})
	return nil
}
