// Package engine is a MeCab-compatible tokenizer backed by kagome and its
// bundled IPA and UniDic dictionaries. It speaks the same line protocol as
// the mecab command, so the bridge can drive it when MeCab is not installed.
package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ikawaha/kagome-dict/dict"
	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome-dict/uni"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// EOS terminates the analysis of one input line.
const EOS = "EOS"

var (
	// ErrUnknownDictionary is returned for a dictionary with no bundled data.
	ErrUnknownDictionary = errors.New("engine: no bundled dictionary")
	// ErrUnknownMode is returned for an unrecognised segmentation mode.
	ErrUnknownMode = errors.New("engine: unknown mode")
)

var bundled = map[string]func() *dict.Dict{
	"ipa": ipa.Dict,
	"uni": uni.Dict,
}

var modes = map[string]tokenizer.TokenizeMode{
	"normal":   tokenizer.Normal,
	"search":   tokenizer.Search,
	"extended": tokenizer.Extended,
}

// Bundled maps a MeCab dictionary name or directory to the bundled
// dictionary that stands in for it: ipadic* uses IPA, unidic* uses UniDic.
func Bundled(name string) (string, error) {
	base := strings.ToLower(filepath.Base(filepath.Clean(name)))
	switch {
	case strings.HasPrefix(base, "ipadic"), base == "ipa":
		return "ipa", nil
	case strings.HasPrefix(base, "unidic"), base == "uni":
		return "uni", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDictionary, name)
}

// Modes returns the accepted mode names, sorted.
func Modes() []string {
	out := make([]string, 0, len(modes))
	for m := range modes {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Engine analyses text with one kagome tokenizer.
type Engine struct {
	t    *tokenizer.Tokenizer
	mode tokenizer.TokenizeMode
}

// New loads the bundled dictionary standing in for name and prepares a
// tokenizer in the given mode ("" means normal).
func New(name, mode string) (*Engine, error) {
	key, err := Bundled(name)
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = "normal"
	}
	m, ok := modes[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownMode, mode, strings.Join(Modes(), ", "))
	}
	t, err := tokenizer.New(bundled[key](), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("engine: load %s dictionary: %w", key, err)
	}
	return &Engine{t: t, mode: m}, nil
}

// Analyze returns the MeCab output lines for one input line, without EOS.
func (e *Engine) Analyze(line string) []string {
	if line == "" {
		return nil
	}
	toks := e.t.Analyze(line, e.mode)
	out := make([]string, 0, len(toks))
	for _, tk := range toks {
		if tk.Class == tokenizer.DUMMY {
			continue
		}
		out = append(out, formatToken(tk))
	}
	return out
}

func formatToken(tk tokenizer.Token) string {
	return tk.Surface + "\t" + strings.Join(tk.Features(), ",")
}

// Serve reads one segment per line from r and writes its analysis followed
// by EOS to w, flushing after every EOS. It returns nil when r ends.
func (e *Engine) Serve(r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	bw := bufio.NewWriter(w)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		for _, out := range e.Analyze(line) {
			bw.WriteString(out)
			bw.WriteByte('\n')
		}
		bw.WriteString(EOS + "\n")
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	return sc.Err()
}
