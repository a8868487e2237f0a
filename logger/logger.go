// Package logger writes troubleshooting dumps of the native messaging
// traffic. Regular diagnostics go through klog; stdout is never touched.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"k8s.io/klog/v2"
)

// InitLogs ensures dir exists and removes any .json files left by an
// earlier run.
func InitLogs(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	for _, f := range files {
		_ = os.Remove(f)
	}
	return nil
}

// LogJSON writes v as indented JSON to dir/<name>.json through a temporary
// file, so readers never see a partial dump.
func LogJSON(dir, name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	final := filepath.Join(dir, filepath.Base(name)+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Dumper numbers and writes message dumps. A nil Dumper discards them.
type Dumper struct {
	dir string
	n   atomic.Uint64
}

// NewDumper prepares dir for dumps. An empty dir returns a nil Dumper.
func NewDumper(dir string) (*Dumper, error) {
	if dir == "" {
		return nil, nil
	}
	if err := InitLogs(dir); err != nil {
		return nil, fmt.Errorf("logger: prepare dump dir: %w", err)
	}
	return &Dumper{dir: dir}, nil
}

// Dump writes the request and response of one exchange. Failures are
// logged, never returned: dumps must not break message handling.
func (d *Dumper) Dump(request, response any) {
	if d == nil {
		return
	}
	seq := d.n.Add(1)
	name := fmt.Sprintf("%06d", seq)
	if err := LogJSON(d.dir, name+"_request", request); err != nil {
		klog.ErrorS(err, "Writing request dump", "dir", d.dir, "exchange", seq)
	}
	if response == nil {
		return
	}
	if err := LogJSON(d.dir, name+"_response", response); err != nil {
		klog.ErrorS(err, "Writing response dump", "dir", d.dir, "exchange", seq)
	}
}
