package archive

import (
	"context"
	"os"
	"path/filepath"

	cryptoutil "detailpay/internal/platform/crypto"
)

type Local struct {
	root   string
	crypto *cryptoutil.Service
}

func NewLocal(root string, crypto *cryptoutil.Service) *Local {
	return &Local{root: root, crypto: crypto}
}

func (l *Local) Archive(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := objectKey(doc)
	if err != nil {
		return "", err
	}
	key, body, err := seal(l.crypto, key, doc.Body)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(fullPath, body, 0o600); err != nil {
		return "", err
	}
	return "local://" + key, nil
}
