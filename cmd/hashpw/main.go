// Command hashpw prints a password hash for LICENSE_ADMIN_PASSWORD_HASH.
//
// Usage:
//
//	hashpw [--password-file PATH] [--legacy]
//
// Without --password-file the password is read from the terminal with echo
// disabled and must be entered twice.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/channellicense/channellicense/internal/auth"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "hashpw: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		passwordFile string
		legacy       bool
	)

	flagSet := pflag.NewFlagSet("hashpw", pflag.ContinueOnError)
	flagSet.StringVar(&passwordFile, "password-file", "", "read the password from this file instead of prompting")
	flagSet.BoolVar(&legacy, "legacy", false, "print an unsalted SHA-256 hex digest instead of bcrypt")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))
	}

	password, err := readPassword(passwordFile)
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	if legacy {
		fmt.Println(auth.LegacyHash(password))
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	fmt.Println(hash)
	return nil
}

// readPassword reads from path, stripping trailing newlines, or prompts
// twice on the terminal when path is empty.
func readPassword(path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for interactive password prompt (use --password-file)")
	}

	first, err := prompt(fd, "Password: ")
	if err != nil {
		return "", err
	}
	second, err := prompt(fd, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}

func prompt(fd int, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}
