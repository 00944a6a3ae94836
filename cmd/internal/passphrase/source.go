// Package passphrase resolves the coordinator operator's keystore
// passphrase from an environment variable, a file, or an interactive
// terminal prompt.
package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves the operator keystore passphrase and caches it
// after the first successful retrieval, so a passphrase typed once is
// reused for every subsequent ledger.OperatorKey operation in the process.
type Source struct {
	envVar string
	file   string

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a passphrase source. envVar (if non-empty) is tried
// first, then file (if non-empty), then an interactive terminal prompt.
func NewSource(envVar, file string) *Source {
	return &Source{envVar: strings.TrimSpace(envVar), file: strings.TrimSpace(file)}
}

// Get returns the cached passphrase or resolves it on first call.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := os.LookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}
		if s.file != "" {
			data, err := os.ReadFile(s.file)
			if err == nil {
				if strings.TrimSpace(string(data)) == "" {
					s.err = fmt.Errorf("%s is empty", s.file)
					return
				}
				s.value = strings.TrimRight(string(data), "\r\n")
				return
			}
			if !os.IsNotExist(err) {
				s.err = fmt.Errorf("read passphrase file %s: %w", s.file, err)
				return
			}
		}

		if !term.IsTerminal(int(os.Stdin.Fd())) {
			s.err = errors.New("operator keystore passphrase required; set an env var, a passphrase file, or run interactively")
			return
		}

		fmt.Fprint(os.Stderr, "Enter operator keystore passphrase: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			s.err = fmt.Errorf("read passphrase: %w", err)
			return
		}
		passphrase := string(bytes)
		if strings.TrimSpace(passphrase) == "" {
			s.err = errors.New("operator keystore passphrase cannot be empty")
			return
		}
		s.value = passphrase
	})
	return s.value, s.err
}
