package credentials

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// TerminalPrompter asks on the terminal. The user name is echoed; the
// password is read with echo off. When standard input is not a terminal,
// such as in a pipeline, both are read as plain lines.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer

	reader *bufio.Reader
}

func (p *TerminalPrompter) in() *os.File {
	if p.In != nil {
		return p.In
	}
	return os.Stdin
}

func (p *TerminalPrompter) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return os.Stderr
}

func (p *TerminalPrompter) PromptUser() (string, error) {
	fmt.Fprint(p.out(), "Catalog user name: ")
	return p.readLine()
}

func (p *TerminalPrompter) PromptPassword() (string, error) {
	fmt.Fprint(p.out(), "Password: ")

	fd := int(p.in().Fd())
	if !term.IsTerminal(fd) {
		return p.readLine()
	}

	data, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (p *TerminalPrompter) readLine() (string, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.in())
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
