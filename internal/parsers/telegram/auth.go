package telegram

// auth.go is a from-scratch rewrite of the base userbot's terminal
// authenticator: same auth.UserAuthenticator contract and the same prompts
// (phone/code/password/ToS/sign-up), but built on bufio+x/term instead of
// the readline-backed pr package, since this bot is a one-shot batch CLI
// rather than an interactive REPL with a persistent prompt line.

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"
)

// TerminalAuthenticator implements auth.UserAuthenticator for Parser.Run's
// login flow: its prompts are only reached when the configured phone number
// has no usable session file yet.
type TerminalAuthenticator struct {
	PhoneNumber string
	In          io.Reader
	Out         io.Writer
}

func (t TerminalAuthenticator) reader() *bufio.Reader {
	if t.In == nil {
		return bufio.NewReader(strings.NewReader(""))
	}
	return bufio.NewReader(t.In)
}

func (t TerminalAuthenticator) printf(format string, a ...any) {
	if t.Out == nil {
		return
	}
	fmt.Fprintf(t.Out, format, a...)
}

func (t TerminalAuthenticator) readLine(prompt string) (string, error) {
	t.printf("%s", prompt)
	line, err := t.reader().ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Phone returns the configured phone number; its format is the operator's
// responsibility (E.164 expected).
func (t TerminalAuthenticator) Phone(context.Context) (string, error) {
	return t.PhoneNumber, nil
}

// Code prompts for the confirmation code Telegram just sent.
func (t TerminalAuthenticator) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return t.readLine("Enter the code from Telegram: ")
}

// Password prompts for the 2FA password without echoing it back.
func (t TerminalAuthenticator) Password(context.Context) (string, error) {
	t.printf("Enter 2FA password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	t.printf("\n")
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}

// AcceptTermsOfService prints Telegram's ToS text and requires an explicit
// "y" to proceed.
func (t TerminalAuthenticator) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	t.printf("Telegram Terms of Service: %s\n", tos.Text)
	resp, err := t.readLine("Do you accept? (y/n): ")
	if err != nil {
		return err
	}
	if !strings.EqualFold(resp, "y") {
		return errors.New("user did not accept terms of service")
	}
	return nil
}

// SignUp collects a first/last name for a phone number Telegram has never
// seen before.
func (t TerminalAuthenticator) SignUp(context.Context) (auth.UserInfo, error) {
	firstName, err := t.readLine("Enter your first name: ")
	if err != nil {
		return auth.UserInfo{}, err
	}
	lastName, _ := t.readLine("Enter your last name (optional): ")
	return auth.UserInfo{FirstName: firstName, LastName: lastName}, nil
}
