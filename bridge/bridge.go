// Package bridge runs the native messaging request loop between the browser
// extension and the tokenizers.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"k8s.io/klog/v2"

	"mecabbridge/logger"
	"mecabbridge/metrics"
	"mecabbridge/model"
	"mecabbridge/nativemsg"
)

// Parser analyses text with the named dictionaries (all when names is empty).
type Parser interface {
	Parse(ctx context.Context, text string, names []string) (map[string]model.ParseResult, error)
}

// Bridge answers requests read from a native messaging channel, one at a time
// and in arrival order.
type Bridge struct {
	ch      *nativemsg.Channel
	parser  Parser
	metrics *metrics.Metrics
	dumper  *logger.Dumper
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithMetrics records request outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithDumper writes every exchange through d.
func WithDumper(d *logger.Dumper) Option {
	return func(b *Bridge) { b.dumper = d }
}

// New returns a Bridge serving ch with parser.
func New(ch *nativemsg.Channel, parser Parser, opts ...Option) *Bridge {
	b := &Bridge{ch: ch, parser: parser}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run serves requests until the input ends or ctx is cancelled. A clean end
// of input returns nil; a broken channel returns the error.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var req model.ParseRequest
		err := b.ch.ReadMessage(&req)
		var decodeErr *nativemsg.DecodeError
		switch {
		case errors.Is(err, io.EOF):
			klog.V(1).InfoS("Input closed, shutting down")
			return nil
		case errors.As(err, &decodeErr):
			klog.ErrorS(err, "Skipping malformed message")
			b.metrics.RequestHandled("", "malformed")
			continue
		case err != nil:
			return fmt.Errorf("bridge: read: %w", err)
		}

		resp := b.handle(ctx, &req)
		if resp == nil {
			b.dumper.Dump(req, nil)
			continue
		}
		b.dumper.Dump(req, resp)
		if err := b.ch.WriteMessage(resp); err != nil {
			return fmt.Errorf("bridge: write: %w", err)
		}
	}
}

// handle returns the response for req, or nil when req gets no answer.
func (b *Bridge) handle(ctx context.Context, req *model.ParseRequest) *model.ParseResponse {
	if req.Action != model.ActionParseText {
		klog.V(2).InfoS("Ignoring request", "action", req.Action)
		b.metrics.RequestHandled(req.Action, "ignored")
		return nil
	}

	start := time.Now()
	data, err := b.parser.Parse(ctx, req.Params.Text, req.Params.Dictionaries)
	if err != nil {
		klog.ErrorS(err, "Parse failed", "sequence", string(req.Sequence), "dictionaries", req.Params.Dictionaries)
		b.metrics.RequestHandled(req.Action, "error")
		return &model.ParseResponse{
			Sequence: req.Sequence,
			Data:     map[string]model.ParseResult{},
			Error:    err.Error(),
		}
	}
	klog.V(3).InfoS("Parsed", "sequence", string(req.Sequence), "runes", len([]rune(req.Params.Text)), "took", time.Since(start))
	b.metrics.RequestHandled(req.Action, "ok")
	return &model.ParseResponse{Sequence: req.Sequence, Data: data}
}
