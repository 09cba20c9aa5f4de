package auth

import (
	"fmt"
	"os"
	"strings"

	"ppn/application/ppn"
)

// StaticTokens serves one fixed OAuth token, for configurations where the
// host app refreshes the token file itself.
type StaticTokens struct {
	token string
}

func NewStaticTokens(token string) *StaticTokens {
	return &StaticTokens{token: token}
}

func (t *StaticTokens) OAuthToken() (string, error) {
	if t.token == "" {
		return "", fmt.Errorf("no oauth token configured")
	}
	return t.token, nil
}

// FileTokens re-reads the token from a file on every request, picking up
// external refreshes.
type FileTokens struct {
	path string
}

func NewFileTokens(path string) *FileTokens {
	return &FileTokens{path: path}
}

func (t *FileTokens) OAuthToken() (string, error) {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		return "", fmt.Errorf("read oauth token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("oauth token file %s is empty", t.path)
	}
	return token, nil
}

var (
	_ ppn.TokenProvider = (*StaticTokens)(nil)
	_ ppn.TokenProvider = (*FileTokens)(nil)
)
