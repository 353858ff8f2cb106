package chat

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"
)

// terminalAuth implements auth.UserAuthenticator by prompting on stdin,
// driving the phone/code/2FA flow described by SPEC_FULL.md's `tg login`
// command.
type terminalAuth struct {
	phone string
}

func (t terminalAuth) Phone(ctx context.Context) (string, error) {
	if t.phone != "" {
		return t.phone, nil
	}
	return prompt("Phone number (with country code, e.g. +380...): ")
}

func (t terminalAuth) Password(ctx context.Context) (string, error) {
	fmt.Print("Two-factor authentication password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("chat: reading 2FA password: %w", err)
	}
	return string(b), nil
}

func (t terminalAuth) Code(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	return prompt("Enter code: ")
}

func (t terminalAuth) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return nil
}

func (t terminalAuth) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, fmt.Errorf("chat: account does not exist, sign-up is not supported")
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Login runs the interactive phone/code/2FA flow for `pail tg login`.
func (l *Listener) Login(ctx context.Context, phone string) error {
	return l.client.Run(ctx, func(ctx context.Context) error {
		status, err := l.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("chat: checking auth status: %w", err)
		}
		if status.Authorized {
			fmt.Println("Already logged in.")
			return nil
		}

		flow := auth.NewFlow(terminalAuth{phone: phone}, auth.SendCodeOptions{})
		if err := l.client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("chat: sign-in failed: %w", err)
		}

		fmt.Println("Logged in.")
		return nil
	})
}

// Status reports session/connection state for `pail tg status`.
func (l *Listener) Status(ctx context.Context) error {
	return l.client.Run(ctx, func(ctx context.Context) error {
		status, err := l.client.Auth().Status(ctx)
		if err != nil {
			fmt.Println("Status: connection error")
			fmt.Println("  Error:", err)
			return nil
		}
		if !status.Authorized {
			fmt.Println("Status: not authorized")
			fmt.Println("  Run 'pail tg login' to authenticate.")
			return nil
		}

		self, err := l.client.Self(ctx)
		if err != nil {
			fmt.Println("Status: connected, but failed to resolve self:", err)
			return nil
		}

		fmt.Println("Status: connected")
		fmt.Printf("  User ID: %d\n", self.ID)
		if self.Username != "" {
			fmt.Printf("  Username: @%s\n", self.Username)
		}
		return nil
	})
}
