package auth

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"oura-sync/internal/errors"
)

func TestFileStore_AbsentAndEmpty(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "token.json"))
	tok, err := s.Load()
	require.NoError(t, err)
	require.Nil(t, tok)

	require.NoError(t, os.WriteFile(s.Path(), []byte("{}\n"), 0o600))
	tok, err = s.Load()
	require.NoError(t, err)
	require.Nil(t, tok)
}

func TestFileStore_RoundTripKeepsProviderFields(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "token.json"))
	// a file written by another client, with extra fields and a fractional expires_at
	raw := `{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":86400,"expires_at":1700000000.5,"scope":["daily","personal"]}`
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
	require.NoError(t, os.WriteFile(s.Path(), []byte(raw), 0o600))

	tok, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, "a", tok.AccessToken)
	require.Equal(t, 1700000000.5, tok.ExpiresAt)
	require.Equal(t, int64(1700000000), tok.Expiry().Unix())

	require.NoError(t, s.Save(tok))
	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.JSONEq(t, raw, string(b))
}

func TestFileStore_CorruptFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))
	_, err := s.Load()
	var fe *errors.ErrTokenFile
	require.True(t, stderrors.As(err, &fe))
	require.Equal(t, "parse", fe.Op)
}

func TestFileStore_UnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	s := NewFileStore(filepath.Join(blocker, "token.json"))
	err := s.Save(&Token{AccessToken: "a"})
	var fe *errors.ErrTokenFile
	require.True(t, stderrors.As(err, &fe))
}

func TestConsolePrompter(t *testing.T) {
	var out bytes.Buffer
	p := ConsolePrompter{In: strings.NewReader("http://cb?code=x&state=y\n"), Out: &out}
	line, err := p.Prompt(context.Background(), "http://auth?client_id=1")
	require.NoError(t, err)
	require.Equal(t, "http://cb?code=x&state=y", line)
	require.Contains(t, out.String(), "http://auth?client_id=1")

	p = ConsolePrompter{In: strings.NewReader(""), Out: &out}
	_, err = p.Prompt(context.Background(), "http://auth")
	var ae *errors.ErrAuthentication
	require.True(t, stderrors.As(err, &ae))
}
