package tokenize

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"mecabbridge/model"
)

// eosMarker terminates the analysis of one input line.
const eosMarker = "EOS"

// interpunct is the katakana middle dot, treated like whitespace.
const interpunct = '・'

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == interpunct || (r >= 0x1c && r <= 0x1f)
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x85, 0x2028, 0x2029:
		return true
	}
	return false
}

// splitLines splits text on any line break. "\r\n" counts once and a
// trailing break does not start another line.
func splitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isLineBreak(r) {
			i += size
			continue
		}
		lines = append(lines, text[start:i])
		i += size
		if r == '\r' && i < len(text) && text[i] == '\n' {
			i++
		}
		start = i
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

type segment struct {
	text      string
	separator bool
}

// splitSegments cuts line into alternating maximal runs of separator and
// non-separator runes. Concatenating the segments gives back line.
func splitSegments(line string) []segment {
	var segs []segment
	start := 0
	inSep := false
	for i, r := range line {
		sep := isSeparator(r)
		if i == 0 {
			inSep = sep
			continue
		}
		if sep != inSep {
			segs = append(segs, segment{text: line[start:i], separator: inSep})
			start = i
			inSep = sep
		}
	}
	if start < len(line) {
		segs = append(segs, segment{text: line[start:], separator: inSep})
	}
	return segs
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if isSeparator(r) {
			return -1
		}
		return r
	}, s)
}

// parseOutputLine turns one "surface\tf1,f2,..." line into a token.
func parseOutputLine(line string, schema model.Schema) (model.Token, error) {
	source, rest, ok := strings.Cut(line, "\t")
	if !ok {
		return nil, fmt.Errorf("tokenize: no feature column in %q", line)
	}
	raw := strings.Split(rest, ",")
	features := make([]string, len(raw))
	for i, f := range raw {
		if f == "*" {
			continue
		}
		f, _, _ = strings.Cut(f, "-")
		features[i] = stripSeparators(f)
	}
	return schema.NewToken(source, features), nil
}
