// Command mecabbridge is a browser native messaging host that tokenizes
// Japanese text with MeCab. The browser talks to it over stdin/stdout;
// diagnostics go to stderr.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"k8s.io/klog/v2"

	"mecabbridge/bridge"
	"mecabbridge/config"
	"mecabbridge/logger"
	"mecabbridge/metrics"
	"mecabbridge/model"
	"mecabbridge/nativemsg"
	"mecabbridge/orchestrate"
	"mecabbridge/tokenize"
)

func main() {
	exeDir := executableDir()

	klog.InitFlags(flag.CommandLine)
	configPath := flag.String("config", filepath.Join(exeDir, config.FileName), "path to the YAML configuration")
	flag.Int("parent-window", 0, "window handle passed by Chrome on Windows (ignored)")
	flag.Parse()

	// Browsers append the caller origin (and on Windows a window handle)
	// as positional arguments; they carry nothing the host needs.
	if flag.NArg() > 0 {
		klog.V(1).InfoS("Started by browser", "args", flag.Args())
	}

	code := run(*configPath, exeDir)
	klog.Flush()
	os.Exit(code)
}

func run(configPath, baseDir string) int {
	cfg, err := config.Load(configPath, baseDir)
	if err != nil {
		klog.ErrorS(err, "Loading configuration", "path", configPath)
		return 1
	}

	m := metrics.New()
	if cfg.Metrics.Address != "" {
		srv := metrics.NewServer(cfg.Metrics.Address, m)
		if err := srv.Start(); err != nil {
			klog.ErrorS(err, "Metrics server disabled", "address", cfg.Metrics.Address)
		} else {
			defer srv.Stop()
		}
	}

	dumper, err := logger.NewDumper(cfg.Debug.DumpDir)
	if err != nil {
		klog.ErrorS(err, "Debug dumps disabled")
	}

	launcher := &tokenize.Launcher{
		Binary:      cfg.Mecab.Binary,
		Args:        cfg.Mecab.Args,
		DataDir:     cfg.Mecab.DataDir,
		RCFile:      cfg.Mecab.RCFile,
		ReadTimeout: cfg.Mecab.ReadTimeout,
		Metrics:     m,
	}
	orch := orchestrate.New(orchestrate.Options{
		Dictionaries: cfg.Dictionaries,
		DataDir:      cfg.Mecab.DataDir,
		Start: func(name string, schema model.Schema) (orchestrate.Parser, error) {
			p, err := launcher.Start(name, schema)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		Concurrency:    cfg.Orchestrator.Concurrency,
		RestartLimiter: cfg.Orchestrator.RestartLimiter(),
		Metrics:        m,
	})
	defer orch.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bridge.New(nativemsg.NewChannel(os.Stdin, os.Stdout), orch,
		bridge.WithMetrics(m),
		bridge.WithDumper(dumper),
	)
	errc := make(chan error, 1)
	go func() { errc <- b.Run(ctx) }()

	select {
	case err := <-errc:
		if err != nil {
			klog.ErrorS(err, "Native messaging channel failed")
			return 1
		}
	case <-ctx.Done():
		klog.InfoS("Shutting down on signal")
	}
	return 0
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}
