package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// passwordEnv holds the keystore password for unattended runs.
const passwordEnv = "CROSSLOCK_PASSWORD"

// readPassword returns the keystore password from passwordEnv, or prompts on
// the terminal. With confirm set the password is asked twice.
func readPassword(prompt string, confirm bool) (string, error) {
	if value, ok := os.LookupEnv(passwordEnv); ok {
		if strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("%s is set but empty", passwordEnv)
		}
		return value, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("keystore password required; set %s or run interactively", passwordEnv)
	}

	password, err := prompt1(fd, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(password) == "" {
		return "", errors.New("keystore password cannot be empty")
	}
	if confirm {
		again, err := prompt1(fd, "Confirm password: ")
		if err != nil {
			return "", err
		}
		if again != password {
			return "", errors.New("passwords do not match")
		}
	}
	return password, nil
}

func prompt1(fd int, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}
