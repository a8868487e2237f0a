package bridge

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mecabbridge/logger"
	"mecabbridge/metrics"
	"mecabbridge/model"
	"mecabbridge/nativemsg"
)

type call struct {
	text  string
	names []string
}

type fakeParser struct {
	calls []call
	err   error
}

func (p *fakeParser) Parse(_ context.Context, text string, names []string) (map[string]model.ParseResult, error) {
	p.calls = append(p.calls, call{text: text, names: names})
	if p.err != nil {
		return nil, p.err
	}
	tok := model.DefaultDictionaries()["ipadic"].NewToken(text, []string{"名詞", "一般", "*", "*", "*", "*", text, "ネコ", "ネコ"})
	return map[string]model.ParseResult{"ipadic": {{tok}}}, nil
}

func frames(t *testing.T, payloads ...string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := nativemsg.NewWriter(&buf)
	for _, p := range payloads {
		require.NoError(t, w.WriteRaw([]byte(p)))
	}
	return &buf
}

func readAll(t *testing.T, out *bytes.Buffer) []string {
	t.Helper()
	r := nativemsg.NewReader(out)
	var got []string
	for {
		b, err := r.ReadRaw()
		if errors.Is(err, io.EOF) {
			return got
		}
		require.NoError(t, err)
		got = append(got, string(b))
	}
}

func TestRunParseText(t *testing.T) {
	in := frames(t, `{"action":"parse_text","sequence":1,"params":{"text":"猫"}}`)
	var out bytes.Buffer
	p := &fakeParser{}

	require.NoError(t, New(nativemsg.NewChannel(in, &out), p).Run(context.Background()))

	got := readAll(t, &out)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"sequence":1,"data":{"ipadic":[[{"source":"猫","pos":"名詞","pos2":"一般","expression":"猫","reading":"ネコ","pron":"ネコ"}]]}}`, got[0])
	require.Len(t, p.calls, 1)
	assert.Equal(t, "猫", p.calls[0].text)
	assert.Empty(t, p.calls[0].names)
}

func TestRunEchoesSequenceVerbatim(t *testing.T) {
	in := frames(t,
		`{"action":"parse_text","sequence":"req-7","params":{"text":"a","dictionaries":["ipadic"]}}`,
		`{"action":"parse_text","sequence":{"tab":3,"n":[1,2]},"params":{"text":"b"}}`,
	)
	var out bytes.Buffer
	p := &fakeParser{}

	require.NoError(t, New(nativemsg.NewChannel(in, &out), p).Run(context.Background()))

	got := readAll(t, &out)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], `"sequence":"req-7"`)
	assert.Contains(t, got[1], `"sequence":{"tab":3,"n":[1,2]}`)
	assert.Equal(t, []string{"ipadic"}, p.calls[0].names)
}

func TestRunIgnoresUnknownAction(t *testing.T) {
	in := frames(t,
		`{"action":"get_version","sequence":1}`,
		`{"action":"parse_text","sequence":2,"params":{"text":"x"}}`,
	)
	var out bytes.Buffer
	m := metrics.New()

	require.NoError(t, New(nativemsg.NewChannel(in, &out), &fakeParser{}, WithMetrics(m)).Run(context.Background()))

	got := readAll(t, &out)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], `"sequence":2`)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("get_version", "ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(model.ActionParseText, "ok")))
}

func TestRunSkipsMalformedFrames(t *testing.T) {
	in := frames(t,
		`{"action":`,
		`{"action":"parse_text","sequence":3,"params":{"text":"x"}}`,
	)
	var out bytes.Buffer

	require.NoError(t, New(nativemsg.NewChannel(in, &out), &fakeParser{}).Run(context.Background()))

	got := readAll(t, &out)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], `"sequence":3`)
}

func TestRunParseErrorResponse(t *testing.T) {
	in := frames(t, `{"action":"parse_text","sequence":9,"params":{"text":"x"}}`)
	var out bytes.Buffer
	p := &fakeParser{err: errors.New("orchestrate: dictionary not available: \"jumandic\"")}

	require.NoError(t, New(nativemsg.NewChannel(in, &out), p).Run(context.Background()))

	got := readAll(t, &out)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"sequence":9,"data":{},"error":"orchestrate: dictionary not available: \"jumandic\""}`, got[0])
}

func TestRunTruncatedInputIsFatal(t *testing.T) {
	var in bytes.Buffer
	var prefix [4]byte
	binary.NativeEndian.PutUint32(prefix[:], 100)
	in.Write(prefix[:])
	in.WriteString(`{"action"`)

	err := New(nativemsg.NewChannel(&in, io.Discard), &fakeParser{}).Run(context.Background())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRunWriteErrorIsFatal(t *testing.T) {
	in := frames(t, `{"action":"parse_text","sequence":1,"params":{"text":"x"}}`)
	err := New(nativemsg.NewChannel(in, failingWriter{}), &fakeParser{}).Run(context.Background())
	assert.ErrorContains(t, err, "broken pipe")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := frames(t, `{"action":"parse_text","sequence":1,"params":{"text":"x"}}`)
	var out bytes.Buffer

	err := New(nativemsg.NewChannel(in, &out), &fakeParser{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, out.Len())
}

func TestRunDumpsExchanges(t *testing.T) {
	dir := t.TempDir()
	d, err := logger.NewDumper(dir)
	require.NoError(t, err)
	in := frames(t, `{"action":"parse_text","sequence":1,"params":{"text":"猫"}}`)

	require.NoError(t, New(nativemsg.NewChannel(in, io.Discard), &fakeParser{}, WithDumper(d)).Run(context.Background()))

	b, err := os.ReadFile(filepath.Join(dir, "000001_response.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"ipadic"`)
}
