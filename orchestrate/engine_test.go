package orchestrate

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mecabbridge/metrics"
	"mecabbridge/model"
	"mecabbridge/tokenize"
)

// TestHelperProcess is not a real test: it is re-executed as a MeCab engine.
// The first engine started against a state file misbehaves as
// ORCHESTRATE_FIRST says; later ones answer normally.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("ORCHESTRATE_HELPER") != "1" {
		return
	}
	os.Exit(helperEngine(os.Getenv("ORCHESTRATE_STATE"), os.Getenv("ORCHESTRATE_FIRST")))
}

func helperEngine(statePath, first string) int {
	prev, _ := os.ReadFile(statePath)
	starts := strings.Count(string(prev), "\n")
	f, err := os.OpenFile(statePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 2
	}
	fmt.Fprintln(f, "start")
	f.Close()

	mode := "echo"
	if starts == 0 {
		mode = first
	}
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		switch mode {
		case "crash":
			return 3
		case "hang":
			continue
		}
		fmt.Printf("%s\t名詞,一般,*,*,*,*,%s,ネコ,ネコ\nEOS\n", sc.Text(), sc.Text())
	}
	return 0
}

func TestParseRestartsFailedEngine(t *testing.T) {
	for _, first := range []string{"crash", "hang"} {
		t.Run(first, func(t *testing.T) {
			statePath := filepath.Join(t.TempDir(), "starts")
			launcher := &tokenize.Launcher{
				Binary:  os.Args[0],
				Args:    []string{"-test.run=^TestHelperProcess$", "--"},
				DataDir: dataDir(t, "ipadic"),
				Env: []string{
					"ORCHESTRATE_HELPER=1",
					"ORCHESTRATE_STATE=" + statePath,
					"ORCHESTRATE_FIRST=" + first,
				},
				ReadTimeout: 500 * time.Millisecond,
			}
			m := metrics.New()
			o := New(Options{
				Dictionaries: model.DefaultDictionaries(),
				DataDir:      launcher.DataDir,
				Start: func(name string, schema model.Schema) (Parser, error) {
					p, err := launcher.Start(name, schema)
					if err != nil {
						return nil, err
					}
					return p, nil
				},
				Metrics: m,
			})
			defer o.Close()

			res, err := o.Parse(context.Background(), "猫", nil)
			require.NoError(t, err)
			assert.Equal(t, "猫", res["ipadic"][0][0]["source"])
			assert.Equal(t, "ネコ", res["ipadic"][0][0]["reading"])

			b, err := os.ReadFile(statePath)
			require.NoError(t, err)
			assert.Equal(t, 2, strings.Count(string(b), "\n"), "one restart")
			assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineRestarts))
		})
	}
}
