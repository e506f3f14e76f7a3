package auth

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"

	"oura-sync/internal/errors"
)

// CredentialStore 读写令牌记录；Load 在无令牌时返回 (nil, nil)。
type CredentialStore interface {
	Load() (*Token, error)
	Save(*Token) error
}

// FileStore 以 JSON 文件保存令牌，写入采用临时文件+重命名，避免半截文件。
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() (*Token, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &errors.ErrTokenFile{Path: s.path, Op: "read", Err: err}
	}
	b = bytes.TrimSpace(b)
	// 空文件/null/{} 视为未授权
	if len(b) == 0 || string(b) == "null" || string(b) == "{}" {
		return nil, nil
	}
	var t Token
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, &errors.ErrTokenFile{Path: s.path, Op: "parse", Err: err}
	}
	return &t, nil
}

func (s *FileStore) Save(t *Token) error {
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return &errors.ErrTokenFile{Path: s.path, Op: "encode", Err: err}
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &errors.ErrTokenFile{Path: s.path, Op: "mkdir", Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return &errors.ErrTokenFile{Path: s.path, Op: "write", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // 重命名成功后为空操作

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return &errors.ErrTokenFile{Path: s.path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &errors.ErrTokenFile{Path: s.path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &errors.ErrTokenFile{Path: s.path, Op: "write", Err: err}
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return &errors.ErrTokenFile{Path: s.path, Op: "chmod", Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &errors.ErrTokenFile{Path: s.path, Op: "rename", Err: err}
	}
	return nil
}
