// Command mecab-kagome is a drop-in stand-in for the mecab command built on
// kagome. It picks a bundled dictionary from the base name of -d.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"k8s.io/klog/v2"

	"mecabbridge/engine"
)

func main() {
	klog.InitFlags(nil)
	dicDir := flag.String("d", "ipadic", "dictionary directory; its base name selects the bundled dictionary")
	flag.String("r", "", "resource file (accepted for mecab compatibility, ignored)")
	mode := flag.String("mode", "normal", "segmentation mode: "+strings.Join(engine.Modes(), ", "))
	flag.Parse()
	defer klog.Flush()

	e, err := engine.New(*dicDir, *mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mecab-kagome:", err)
		os.Exit(2)
	}
	klog.V(1).InfoS("Serving", "dictionary", *dicDir, "mode", *mode)
	if err := e.Serve(os.Stdin, os.Stdout); err != nil {
		klog.ErrorS(err, "Serving stdin")
		klog.Flush()
		os.Exit(1)
	}
}
