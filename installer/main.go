// Command installer registers the MeCab bridge with a browser and downloads
// a MeCab dictionary. Flags that are not given are asked for interactively.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"

	"mecabbridge/provision"
)

type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

type options struct {
	browser    string
	extraIDs   []string
	hostPath   string
	dictionary string
	dataDir    string
}

func main() {
	klog.InitFlags(nil)
	var opts options
	var ids stringList
	flag.StringVar(&opts.browser, "browser", "", "browser to register with: "+strings.Join(provision.Browsers(), ", "))
	flag.Var(&ids, "extension-id", "additional extension ID allowed to connect (repeatable)")
	flag.StringVar(&opts.hostPath, "host-path", "", "path of the bridge executable (default: mecabbridge next to the installer)")
	flag.StringVar(&opts.dictionary, "dictionary", "", `dictionary to download, or "none": `+strings.Join(provision.Dictionaries(), ", "))
	flag.StringVar(&opts.dataDir, "data-dir", "", "dictionary directory (default: data next to the installer)")
	flag.Parse()
	defer klog.Flush()
	opts.extraIDs = ids

	exeDir := "."
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}
	if opts.hostPath == "" {
		opts.hostPath = filepath.Join(exeDir, "mecabbridge")
	}
	if opts.dataDir == "" {
		opts.dataDir = filepath.Join(exeDir, "data")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, newPrompter(os.Stdin, os.Stdout), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "installer:", err)
		klog.Flush()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, p *prompter, out io.Writer) error {
	interactive := opts.browser == ""
	if interactive {
		browser, err := p.choose("Choose browser", provision.Browsers())
		if err != nil {
			return err
		}
		opts.browser = browser
		fmt.Fprintf(out, "\nUsing default Yomichan extension ID for %s.\n", browser)
		fmt.Fprintln(out, "Add more extension IDs, or press enter to continue")
		more, err := p.collect("Extension ID")
		if err != nil {
			return err
		}
		opts.extraIDs = append(opts.extraIDs, more...)
	}

	path, err := provision.InstallManifest(opts.browser, opts.hostPath, opts.extraIDs...)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Manifest written to", path)

	dictionary := opts.dictionary
	if dictionary == "" && interactive {
		fmt.Fprintln(out)
		ok, err := p.confirm("Install a MeCab dictionary?")
		if err != nil {
			return err
		}
		if ok {
			if dictionary, err = p.choose("Choose dictionary", provision.Dictionaries()); err != nil {
				return err
			}
		}
	}
	if dictionary == "" || dictionary == "none" {
		return nil
	}
	d := &provision.Downloader{DataDir: opts.dataDir}
	if err := d.Install(ctx, dictionary); err != nil {
		return err
	}
	fmt.Fprintln(out, "Done!")
	return nil
}
