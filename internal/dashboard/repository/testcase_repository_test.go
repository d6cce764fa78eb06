package repository

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"testbridge/internal/common/storage"
	"testbridge/internal/dashboard/model"
	appErr "testbridge/pkg/errors"
)

func newLocalRepo(t *testing.T) (*TestCaseRepository, *storage.LocalStorage) {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new local storage failed: %v", err)
	}
	return NewTestCaseRepository(s, "dashboard", ""), s
}

func TestTestCaseRepositoryEmptyBeforeFirstUpload(t *testing.T) {
	repo, _ := newLocalRepo(t)
	cases, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if cases == nil || len(cases) != 0 {
		t.Fatalf("expected empty non-nil set, got %#v", cases)
	}
}

func TestTestCaseRepositoryReplaceWholesale(t *testing.T) {
	repo, _ := newLocalRepo(t)
	ctx := context.Background()

	setA := model.TestCaseSet{
		{ID: "1", Description: "login works", Status: "todo"},
		{ID: "2", Description: "logout works", Status: "todo"},
	}
	setB := model.TestCaseSet{
		{ID: "9", Description: "checkout", Status: "ready"},
	}
	if err := repo.Replace(ctx, setA); err != nil {
		t.Fatalf("replace A failed: %v", err)
	}
	if err := repo.Replace(ctx, setB); err != nil {
		t.Fatalf("replace B failed: %v", err)
	}

	got, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 1 || got[0] != setB[0] {
		t.Fatalf("expected only set B, got %#v", got)
	}

	if err := repo.Replace(ctx, nil); err != nil {
		t.Fatalf("replace with nil failed: %v", err)
	}
	got, err = repo.List(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty set, got %#v %v", got, err)
	}
}

func TestTestCaseRepositoryDocumentLayout(t *testing.T) {
	repo, s := newLocalRepo(t)
	ctx := context.Background()
	if err := repo.Replace(ctx, model.TestCaseSet{{ID: "1", Description: "d", Status: "s"}}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	r, err := s.GetObject(ctx, "dashboard", "test_cases.json")
	if err != nil {
		t.Fatalf("get object failed: %v", err)
	}
	defer func() { _ = r.Close() }()
	data, _ := io.ReadAll(r)
	for _, field := range []string{`"id": "1"`, `"description": "d"`, `"status": "s"`} {
		if !strings.Contains(string(data), field) {
			t.Fatalf("document missing %s: %s", field, data)
		}
	}
}

func TestTestCaseRepositoryEmptyDocument(t *testing.T) {
	repo, s := newLocalRepo(t)
	ctx := context.Background()
	if err := s.PutObject(ctx, "dashboard", "test_cases.json", strings.NewReader(""), 0, ""); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	got, err := repo.List(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty set for empty document, got %#v %v", got, err)
	}
}

func TestTestCaseRepositoryCorruptDocument(t *testing.T) {
	repo, s := newLocalRepo(t)
	ctx := context.Background()
	_ = s.PutObject(ctx, "dashboard", "test_cases.json", strings.NewReader("{oops"), 5, "")
	if _, err := repo.List(ctx); !appErr.Is(err, appErr.StorageReadFailed) {
		t.Fatalf("expected StorageReadFailed, got %v", err)
	}
}

type failingStorage struct {
	storage.ObjectStorage
	err error
}

func (f failingStorage) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, ct string) error {
	return f.err
}

func (f failingStorage) GetObject(ctx context.Context, bucket, key string) (storage.ObjectReader, error) {
	return nil, f.err
}

func TestTestCaseRepositoryStorageFailures(t *testing.T) {
	cause := errors.New("disk gone")
	repo := NewTestCaseRepository(failingStorage{err: cause}, "b", "")
	ctx := context.Background()

	if err := repo.Replace(ctx, model.TestCaseSet{}); !appErr.Is(err, appErr.StorageWriteFailed) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped StorageWriteFailed, got %v", err)
	}
	if _, err := repo.List(ctx); !appErr.Is(err, appErr.StorageReadFailed) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped StorageReadFailed, got %v", err)
	}
}
