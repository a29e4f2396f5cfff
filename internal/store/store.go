// Package store 定义凭证存储接口。每个站点一个实例，按账号 id 保存一条凭证。
package store

import (
	"context"
	"errors"

	"autotask/internal/model"
)

// ErrCorrupt 表示存储文件存在但无法解析；调用方应记录警告并按空存储继续。
var ErrCorrupt = errors.New("credential store corrupt")

type CredentialStore interface {
	Load(ctx context.Context) (map[string]model.Credential, error)
	Upsert(ctx context.Context, accountID string, cred model.Credential) error
	Remove(ctx context.Context, accountID string) error
}
