package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	s, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// choose lists options numbered from 1 and asks until a valid number is given.
func (p *prompter) choose(prompt string, options []string) (string, error) {
	for i, opt := range options {
		fmt.Fprintf(p.out, "%d: %s\n", i+1, opt)
	}
	for {
		answer, err := p.line(prompt + ": ")
		if err != nil {
			return "", err
		}
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(options) {
			return options[n-1], nil
		}
		fmt.Fprintf(p.out, "Enter a number between 1 and %d\n", len(options))
	}
}

// confirm asks a yes/no question; an empty answer means yes.
func (p *prompter) confirm(prompt string) (bool, error) {
	for {
		answer, err := p.line(prompt + " [Y/n]: ")
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "", "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// collect reads values until an empty line.
func (p *prompter) collect(prompt string) ([]string, error) {
	var out []string
	for {
		answer, err := p.line(prompt + ": ")
		if err != nil {
			return nil, err
		}
		if answer == "" {
			return out, nil
		}
		out = append(out, answer)
	}
}
