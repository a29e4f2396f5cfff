package sqlite

import (
	"context"
	"errors"
	"time"

	"autotask/internal/model"
	"autotask/internal/store"
)

// Credentials 是某个站点在 credentials 表中的视图。
type Credentials struct {
	s    *Store
	site string
}

var _ store.CredentialStore = (*Credentials)(nil)

func (s *Store) Credentials(site string) *Credentials {
	return &Credentials{s: s, site: site}
}

func (c *Credentials) Load(ctx context.Context) (map[string]model.Credential, error) {
	rows, err := c.s.db.QueryContext(ctx, `
		SELECT account_id, kind, token, cookies, updated_at
		FROM credentials WHERE site = ?
	`, c.site)
	if err != nil {
		return map[string]model.Credential{}, err
	}
	defer rows.Close()

	out := make(map[string]model.Credential)
	for rows.Next() {
		var row struct {
			accountID string
			kind      string
			token     string
			cookies   string
			updatedAt int64
		}
		if err := rows.Scan(&row.accountID, &row.kind, &row.token, &row.cookies, &row.updatedAt); err != nil {
			return map[string]model.Credential{}, err
		}
		out[row.accountID] = model.Credential{
			Kind:      model.CredentialKind(row.kind),
			Token:     row.token,
			Cookies:   row.cookies,
			UpdatedAt: time.UnixMilli(row.updatedAt).UTC(),
		}
	}
	if err := rows.Err(); err != nil {
		return map[string]model.Credential{}, err
	}
	return out, nil
}

func (c *Credentials) Upsert(ctx context.Context, accountID string, cred model.Credential) error {
	if accountID == "" {
		return errors.New("account id is required")
	}
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = time.Now()
	}
	cred.UpdatedAt = model.StoredTime(cred.UpdatedAt)
	_, err := c.s.db.ExecContext(ctx, `
		INSERT INTO credentials (site, account_id, kind, token, cookies, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(site, account_id) DO UPDATE SET
			kind = excluded.kind,
			token = excluded.token,
			cookies = excluded.cookies,
			updated_at = excluded.updated_at
	`, c.site, accountID, string(cred.Kind), cred.Token, cred.Cookies, cred.UpdatedAt.UnixMilli())
	return err
}

func (c *Credentials) Remove(ctx context.Context, accountID string) error {
	_, err := c.s.db.ExecContext(ctx, `DELETE FROM credentials WHERE site = ? AND account_id = ?`, c.site, accountID)
	return err
}
