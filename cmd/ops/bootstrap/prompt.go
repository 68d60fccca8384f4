package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const rule = "============================================================"

// prompter owns the operator conversation. One scanner is shared by every
// read so buffered input is not lost between prompts.
type prompter struct {
	in      io.Reader
	out     io.Writer
	scanner *bufio.Scanner
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, out: out, scanner: bufio.NewScanner(in)}
}

func (p *prompter) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *prompter) banner(title string) {
	p.printf("\n%s\n  %s\n%s\n", rule, title, rule)
}

// line returns the next input line, or io.EOF once input is closed.
func (p *prompter) line(prompt string) (string, error) {
	p.printf("%s", prompt)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

// secret reads without echo on a terminal and falls back to line for
// piped input.
func (p *prompter) secret(prompt string) (string, error) {
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.line(prompt)
	}
	p.printf("%s", prompt)
	b, err := term.ReadPassword(int(f.Fd()))
	p.printf("\n")
	if err != nil {
		return "", fmt.Errorf("reading secret input: %w", err)
	}
	return string(b), nil
}

// choose asks until the answer is one of options or its first letter.
func (p *prompter) choose(question string, options ...string) (string, error) {
	labels := make([]string, len(options))
	for i, o := range options {
		labels[i] = "[" + strings.ToUpper(o[:1]) + "]" + o[1:]
	}
	prompt := "  " + strings.TrimSpace(question+" "+strings.Join(labels, " or ")) + "? "

	for {
		answer, err := p.line(prompt)
		if err != nil {
			return "", err
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		for _, o := range options {
			if answer == o || answer == o[:1] {
				return o, nil
			}
		}
		p.printf("  Answer one of: %s\n", strings.Join(options, ", "))
	}
}
