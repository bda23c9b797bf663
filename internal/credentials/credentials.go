// Package credentials resolves the catalog user name and password for a run
// and optionally remembers them between runs.
package credentials

import (
	"context"
	"fmt"
	"log/slog"
)

// Credentials carry a catalog user name and password.
type Credentials struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

func (c Credentials) complete() bool {
	return c.User != "" && c.Password != ""
}

// Source identifies where the password of a resolved credential pair came
// from. Only prompted passwords are worth persisting; explicit ones were the
// caller's choice and stored ones are already on disk.
type Source int

const (
	SourceNone Source = iota
	SourceExplicit
	SourceStored
	SourcePrompt
)

func (s Source) String() string {
	switch s {
	case SourceExplicit:
		return "explicit"
	case SourceStored:
		return "stored"
	case SourcePrompt:
		return "prompt"
	default:
		return "none"
	}
}

// Prompter asks the user for the pieces of a credential pair.
type Prompter interface {
	PromptUser() (string, error)
	PromptPassword() (string, error)
}

// Provider resolves credentials with the precedence explicit values, then
// the store, then an interactive prompt. A nil Store or Prompter disables
// that step.
type Provider struct {
	Explicit Credentials
	Store    Store
	Prompter Prompter

	// Persist allows MarkValidated to write prompted credentials to the
	// store once they have authenticated successfully.
	Persist bool

	obtained Credentials
	source   Source
}

// Obtain resolves a complete credential pair. Missing pieces fall through to
// the store and then to the prompt.
func (p *Provider) Obtain(ctx context.Context) (Credentials, Source, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, SourceNone, err
	}

	creds := p.Explicit
	source := SourceNone
	if creds.Password != "" {
		source = SourceExplicit
	}

	if p.Store != nil && !creds.complete() {
		stored, err := p.Store.Load()
		if err != nil {
			slog.Warn("credential store unreadable", "error", err)
		} else {
			if creds.User == "" {
				creds.User = stored.User
			}
			// A stored password belongs to the stored user name.
			if creds.Password == "" && stored.Password != "" && creds.User == stored.User {
				creds.Password = stored.Password
				source = SourceStored
			}
		}
	}

	if !creds.complete() {
		if p.Prompter == nil {
			return Credentials{}, SourceNone, fmt.Errorf("user name and password are required")
		}
		if creds.User == "" {
			user, err := p.Prompter.PromptUser()
			if err != nil {
				return Credentials{}, SourceNone, fmt.Errorf("read user name: %w", err)
			}
			creds.User = user
		}
		if creds.Password == "" {
			password, err := p.Prompter.PromptPassword()
			if err != nil {
				return Credentials{}, SourceNone, fmt.Errorf("read password: %w", err)
			}
			creds.Password = password
			source = SourcePrompt
		}
		if !creds.complete() {
			return Credentials{}, SourceNone, fmt.Errorf("user name and password are required")
		}
	}

	p.obtained = creds
	p.source = source
	return creds, source, nil
}

// MarkValidated records that the obtained credentials authenticated
// successfully. Prompted credentials are written to the store when
// persistence is on; credentials from any other source are left alone.
func (p *Provider) MarkValidated() error {
	if p.source != SourcePrompt || !p.Persist || p.Store == nil {
		return nil
	}
	if err := p.Store.Save(p.obtained); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	slog.Debug("stored credentials", "user", p.obtained.User)
	return nil
}
