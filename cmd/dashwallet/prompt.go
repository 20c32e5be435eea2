package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter reads answers from the command's input. Secrets are read without
// echo when the input is a terminal.
type prompter struct {
	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{
		in:     in,
		reader: bufio.NewReader(in),
		out:    cmd.ErrOrStderr(),
	}
}

// terminalFd returns the descriptor of the input when it is a terminal.
func (p *prompter) terminalFd() (int, bool) {
	f, ok := p.in.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// Line prints prompt and returns the next input line, trimmed.
func (p *prompter) Line(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(p.out, prompt)
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Secret is Line with echo disabled on terminals.
func (p *prompter) Secret(prompt string) (string, error) {
	fd, isTerm := p.terminalFd()
	if !isTerm {
		return p.Line(prompt)
	}

	fmt.Fprint(p.out, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

// Mnemonic reads a mnemonic and, when askPassphrase is set, a BIP39
// passphrase.
func (p *prompter) Mnemonic(askPassphrase bool) (mnemonic, passphrase string, err error) {
	mnemonic, err = p.Secret("Enter mnemonic: ")
	if err != nil {
		return "", "", err
	}
	if mnemonic == "" {
		return "", "", errors.New("no mnemonic given")
	}

	if askPassphrase {
		if passphrase, err = p.Secret("Enter passphrase: "); err != nil {
			return "", "", err
		}
	}
	return mnemonic, passphrase, nil
}
