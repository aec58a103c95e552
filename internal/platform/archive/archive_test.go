package archive

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	cryptoutil "detailpay/internal/platform/crypto"
)

func TestObjectKeySanitizesSegments(t *testing.T) {
	key, err := objectKey(Document{
		Category: CategoryCheck,
		Path:     "2026/../Oct",
		FileName: "check #1042 Jane Doe.pdf",
		Body:     []byte("x"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "checks/2026/Oct/check-1042-Jane-Doe.pdf" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestObjectKeyRejectsEmptyBody(t *testing.T) {
	if _, err := objectKey(Document{Category: CategoryPayStub, FileName: "a.pdf"}); err != ErrEmptyDocument {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestLocalArchiveEncryptsWhenKeyConfigured(t *testing.T) {
	crypto, err := cryptoutil.New(hex.EncodeToString(bytes.Repeat([]byte{3}, 32)))
	if err != nil {
		t.Fatalf("crypto: %v", err)
	}
	root := t.TempDir()
	ref, err := NewLocal(root, crypto).Archive(context.Background(), Document{
		Category: CategoryPayStub,
		FileName: "stub.pdf",
		Body:     []byte("pay stub body"),
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if ref != "local://paystubs/stub.pdf.enc" {
		t.Fatalf("unexpected ref %q", ref)
	}
	stored, err := os.ReadFile(filepath.Join(root, "paystubs", "stub.pdf.enc"))
	if err != nil {
		t.Fatalf("read archived file: %v", err)
	}
	if bytes.Contains(stored, []byte("pay stub body")) {
		t.Fatal("expected archived file to be encrypted")
	}
	plain, err := crypto.Open("paystubs/stub.pdf", stored)
	if err != nil || string(plain) != "pay stub body" {
		t.Fatalf("expected archived body to open under its key, got %q %v", plain, err)
	}
}

type fakePutter struct {
	input *s3.PutObjectInput
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchivePutsObject(t *testing.T) {
	putter := &fakePutter{}
	a := &S3{client: putter, bucket: "docs"}
	ref, err := a.Archive(context.Background(), Document{
		Category:     CategorySummary,
		PayeeName:    "Payroll",
		ReferenceKey: "2026-10-05_2026-10-11",
		FileName:     "summary.pdf",
		Body:         []byte("summary"),
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if ref != "s3://docs/payroll-summaries/summary.pdf" {
		t.Fatalf("unexpected ref %q", ref)
	}
	if putter.input == nil || *putter.input.Key != "payroll-summaries/summary.pdf" {
		t.Fatal("expected object key to be sent")
	}
	if !strings.EqualFold(*putter.input.ContentType, ContentTypePDF) {
		t.Fatalf("unexpected content type %s", *putter.input.ContentType)
	}
}
