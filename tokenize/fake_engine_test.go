package tokenize

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"mecabbridge/engine"
)

// fakeEngine mimics MeCab's line protocol. Every input line is appended to
// logPath (after a first "args: ..." line) before any reply is written.
//
// Modes: "echo" analyses each line as a single noun, "garbage" prefixes each
// reply with an unparsable line, "crash" exits on the first input, "hang"
// never answers and "kagome" serves the bundled IPA engine.
func fakeEngine(stdin io.Reader, stdout io.Writer, mode, logPath string) int {
	logf, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 2
	}
	defer logf.Close()

	var args []string
	for i, a := range os.Args {
		if a == "--" {
			args = os.Args[i+1:]
			break
		}
	}
	fmt.Fprintf(logf, "args: %s\n", strings.Join(args, " "))

	if mode == "kagome" {
		e, err := engine.New("ipadic", "")
		if err != nil {
			return 2
		}
		if err := e.Serve(stdin, stdout); err != nil {
			return 1
		}
		return 0
	}

	sc := bufio.NewScanner(stdin)
	for sc.Scan() {
		line := sc.Text()
		fmt.Fprintln(logf, line)
		switch mode {
		case "crash":
			return 3
		case "hang":
			continue
		case "garbage":
			fmt.Fprintln(stdout, "no feature column here")
		}
		if line == "猫" {
			fmt.Fprintln(stdout, "猫\t名詞,一般,*,*,*,*,猫,ネコ,ネコ")
		} else if line != "" {
			fmt.Fprintf(stdout, "%s\t名詞,一般,*,*,*,*,%s,*,*\n", line, line)
		}
		fmt.Fprintln(stdout, "EOS")
	}
	return 0
}
