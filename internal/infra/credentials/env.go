// Package credentials resolves venue account key pairs from the process environment and
// optional dotenv files.
package credentials

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/coachpo/orderbroker/errs"
	"github.com/coachpo/orderbroker/internal/domain/broker"
)

const (
	keySuffix    = "_API_KEY"
	secretSuffix = "_API_SECRET"
)

// EnvSource reads <ACCOUNT>_API_KEY and <ACCOUNT>_API_SECRET. Process environment values win
// over dotenv file values.
type EnvSource struct {
	files  []string
	lookup func(string) (string, bool)

	once    sync.Once
	values  map[string]string
	loadErr error
}

var _ broker.CredentialSource = (*EnvSource)(nil)

// NewEnvSource returns a source backed by os.LookupEnv and the given dotenv files. Missing files
// are skipped.
func NewEnvSource(files ...string) *EnvSource {
	return &EnvSource{files: files, lookup: os.LookupEnv}
}

// Credentials returns the key pair for account. The account name is upper-cased and '-', '.'
// and spaces become '_' to form the variable prefix.
func (s *EnvSource) Credentials(_ context.Context, account string) (broker.Credentials, error) {
	prefix := Prefix(account)
	if prefix == "" {
		return broker.Credentials{}, errs.New("", errs.CodeInvalid, errs.WithMessage("account required"))
	}
	s.once.Do(s.load)
	if s.loadErr != nil {
		return broker.Credentials{}, errs.New("", errs.CodeUnavailable,
			errs.WithMessage("load dotenv files"), errs.WithCause(s.loadErr))
	}

	creds := broker.Credentials{
		APIKey: s.get(prefix + keySuffix),
		Secret: s.get(prefix + secretSuffix),
	}
	var missing []string
	if creds.APIKey == "" {
		missing = append(missing, prefix+keySuffix)
	}
	if creds.Secret == "" {
		missing = append(missing, prefix+secretSuffix)
	}
	if len(missing) > 0 {
		return broker.Credentials{}, errs.New("", errs.CodeAuth,
			errs.WithMessage("credentials not configured: "+strings.Join(missing, ", ")))
	}
	return creds, nil
}

// Prefix normalises an account name into an environment variable prefix.
func Prefix(account string) string {
	replacer := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(account)))
}

func (s *EnvSource) load() {
	s.values = make(map[string]string)
	for _, file := range s.files {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			s.loadErr = err
			return
		}
		for k, v := range values {
			if _, exists := s.values[k]; !exists {
				s.values[k] = v
			}
		}
	}
}

func (s *EnvSource) get(name string) string {
	if value, ok := s.lookup(name); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(s.values[name])
}
