package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

type createUserOptions struct {
	username string
	email    string
	fullName string
	phone    string
	role     string
}

type provisioner interface {
	Provision(ctx context.Context, in authcore.RegisterInput, role authcore.Role) (store.Account, error)
}

// createUser prompts twice for the password without echo and provisions the
// account. It returns the new account ID.
func createUser(ctx context.Context, p provisioner, opts createUserOptions, stdin *os.File, w io.Writer) (string, error) {
	if opts.username == "" || opts.email == "" {
		return "", errors.New("-username and -email are required")
	}
	role := authcore.Role(opts.role)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", opts.role)
	}

	pw, err := promptPassword(stdin, w, "Password: ")
	if err != nil {
		return "", err
	}
	defer wipe(pw)
	confirm, err := promptPassword(stdin, w, "Repeat password: ")
	if err != nil {
		return "", err
	}
	defer wipe(confirm)
	if subtle.ConstantTimeCompare(pw, confirm) != 1 {
		return "", errors.New("passwords do not match")
	}

	account, err := p.Provision(ctx, authcore.RegisterInput{
		Username: opts.username,
		Email:    opts.email,
		Password: string(pw),
		FullName: opts.fullName,
		Phone:    opts.phone,
	}, role)
	if err != nil {
		return "", err
	}

	if _, err := fmt.Fprintf(w, "created %s %s (%s)\n", account.Role, account.Username, account.ID); err != nil {
		return "", err
	}
	return account.ID, nil
}

func promptPassword(stdin *os.File, w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
