package model

import (
	"encoding/json"
	"sort"
)

// ActionParseText is the only request action the host answers.
const ActionParseText = "parse_text"

// Ignore marks a schema slot whose feature value is dropped.
const Ignore = "_"

// Token is one analysed morpheme (or separator run), keyed by schema label.
// It always carries "source", the exact surface text it covers.
type Token map[string]string

// Line is the tokens of one input line in surface order.
type Line []Token

// ParseResult holds one Line per input line.
type ParseResult []Line

// Schema is the ordered list of labels a dictionary's feature columns map to.
type Schema []string

// Dictionaries maps a dictionary name to its feature schema.
type Dictionaries map[string]Schema

// ParseParams are the parameters of a parse_text request.
type ParseParams struct {
	Text         string   `json:"text"`
	Dictionaries []string `json:"dictionaries,omitempty"`
}

// ParseRequest is a request frame sent by the browser extension.
// Sequence is kept raw so it is echoed back byte for byte.
type ParseRequest struct {
	Action   string          `json:"action"`
	Sequence json.RawMessage `json:"sequence"`
	Params   ParseParams     `json:"params"`
}

// ParseResponse answers a ParseRequest.
type ParseResponse struct {
	Sequence json.RawMessage        `json:"sequence"`
	Data     map[string]ParseResult `json:"data"`
	Error    string                 `json:"error,omitempty"`
}

var ipadicSchema = Schema{"pos", "pos2", Ignore, Ignore, Ignore, Ignore, "expression", "reading", "pron"}

// DefaultDictionaries returns the schemas of the dictionaries the host knows
// about out of the box. The returned map is a fresh copy.
func DefaultDictionaries() Dictionaries {
	return Dictionaries{
		"ipadic":         append(Schema(nil), ipadicSchema...),
		"ipadic-neologd": append(Schema(nil), ipadicSchema...),
		"unidic-mecab-translate": {
			"pos", "pos2", "pos3", "pos4", "inflection_type", "inflection_form",
			"lemma_reading", "lemma", "expression", "reading", "expression_base", "reading_base",
		},
	}
}

// Names returns the dictionary names in sorted order.
func (d Dictionaries) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fields returns the schema labels that are emitted, in order, without
// ignored slots or duplicates.
func (s Schema) Fields() []string {
	out := make([]string, 0, len(s))
	seen := make(map[string]bool, len(s))
	for _, label := range s {
		if label == Ignore || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}

// NewToken builds a token for source from positional feature values. Values
// in ignored slots are dropped; labels past the end of features are set to "".
func (s Schema) NewToken(source string, features []string) Token {
	tok := Token{"source": source}
	for _, label := range s.Fields() {
		tok[label] = ""
	}
	for i, label := range s {
		if i >= len(features) {
			break
		}
		if label == Ignore {
			continue
		}
		tok[label] = features[i]
	}
	return tok
}

// SeparatorToken builds the placeholder token for a whitespace/interpunct run.
// The tokenizer is never consulted for these.
func (s Schema) SeparatorToken(text string) Token {
	tok := s.NewToken(text, nil)
	tok["expression"] = text
	tok["reading"] = text
	return tok
}
