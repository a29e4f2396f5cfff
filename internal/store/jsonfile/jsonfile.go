package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"autotask/internal/model"
	"autotask/internal/store"
)

type document struct {
	Site       string                      `json:"site"`
	Host       string                      `json:"host,omitempty"`
	Accounts   map[string]model.Credential `json:"accounts"`
	UpdateTime string                      `json:"update_time"`
}

// Store 把一个站点的全部凭证保存在单个 JSON 文件里，每次写入都整体重写。
type Store struct {
	path string
	site string
	host string
	mu   sync.Mutex
	now  func() time.Time
}

var _ store.CredentialStore = (*Store)(nil)

func New(path, site string) *Store {
	return &Store{path: path, site: site, now: time.Now}
}

// PathFor 返回 dir 下站点凭证文件的路径。
func PathFor(dir, site string) string {
	return filepath.Join(dir, site+"_credentials.json")
}

// SetHost 记录当前使用的域名，下次写入时一并保存。
func (s *Store) SetHost(host string) {
	s.mu.Lock()
	s.host = host
	s.mu.Unlock()
}

func (s *Store) Load(ctx context.Context) (map[string]model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return map[string]model.Credential{}, err
	}
	return doc.Accounts, nil
}

func (s *Store) Upsert(ctx context.Context, accountID string, cred model.Credential) error {
	if accountID == "" {
		return errors.New("account id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil && !errors.Is(err, store.ErrCorrupt) {
		return err
	}
	cred.UpdatedAt = model.StoredTime(cred.UpdatedAt)
	doc.Accounts[accountID] = cred
	return s.write(doc)
}

func (s *Store) Remove(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			return nil
		}
		return err
	}
	if _, ok := doc.Accounts[accountID]; !ok {
		return nil
	}
	delete(doc.Accounts, accountID)
	return s.write(doc)
}

func (s *Store) read() (document, error) {
	doc := document{Site: s.site, Accounts: map[string]model.Credential{}}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("read credentials: %w", err)
	}
	var parsed document
	if err := json.Unmarshal(data, &parsed); err != nil {
		return doc, fmt.Errorf("%w: %s: %v", store.ErrCorrupt, s.path, err)
	}
	if parsed.Accounts != nil {
		doc.Accounts = parsed.Accounts
	}
	if parsed.Host != "" {
		doc.Host = parsed.Host
	}
	return doc, nil
}

func (s *Store) write(doc document) error {
	doc.Site = s.site
	if s.host != "" {
		doc.Host = s.host
	}
	doc.UpdateTime = s.now().Format("2006-01-02 15:04:05")
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
