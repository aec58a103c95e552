package archive

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"

	cryptoutil "detailpay/internal/platform/crypto"
)

const (
	CategoryPayStub = "paystubs"
	CategoryCheck   = "checks"
	CategorySummary = "payroll-summaries"
	CategoryAudit   = "payroll-audit"
	ContentTypePDF  = "application/pdf"
	encryptedSuffix = ".enc"
)

var ErrEmptyDocument = errors.New("document body is empty")

// Document is a rendered artifact handed to an archive.
type Document struct {
	Category     string
	PayeeName    string
	ReferenceKey string
	FileName     string
	Path         string
	ContentType  string
	Body         []byte
}

type Archive interface {
	Archive(ctx context.Context, doc Document) (string, error)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitize(value string) string {
	value = strings.TrimSpace(value)
	value = unsafeChars.ReplaceAllString(value, "-")
	return strings.Trim(value, "-.")
}

// objectKey builds category/path/fileName with every segment sanitized.
func objectKey(doc Document) (string, error) {
	if len(doc.Body) == 0 {
		return "", ErrEmptyDocument
	}
	segments := []string{sanitize(doc.Category)}
	for _, part := range strings.Split(doc.Path, "/") {
		if part = sanitize(part); part != "" {
			segments = append(segments, part)
		}
	}
	name := sanitize(doc.FileName)
	if name == "" {
		name = sanitize(doc.ReferenceKey)
	}
	if name == "" {
		return "", errors.New("document needs a file name or reference key")
	}
	segments = append(segments, name)
	return path.Join(segments...), nil
}

func seal(crypto *cryptoutil.Service, key string, body []byte) (string, []byte, error) {
	sealed, encrypted, err := crypto.Seal(key, body)
	if err != nil {
		return "", nil, err
	}
	if encrypted {
		key += encryptedSuffix
	}
	return key, sealed, nil
}
