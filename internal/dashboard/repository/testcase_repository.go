package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"testbridge/internal/common/storage"
	"testbridge/internal/dashboard/model"
	appErr "testbridge/pkg/errors"
)

const defaultTestCasesKey = "test_cases.json"

// TestCaseRepository persists the current TestCaseSet as one JSON document.
type TestCaseRepository struct {
	mu      sync.Mutex
	storage storage.ObjectStorage
	bucket  string
	key     string
}

// NewTestCaseRepository stores the document at bucket/key (a default key is used when empty).
func NewTestCaseRepository(objStorage storage.ObjectStorage, bucket, key string) *TestCaseRepository {
	if key == "" {
		key = defaultTestCasesKey
	}
	return &TestCaseRepository{storage: objStorage, bucket: bucket, key: key}
}

// Replace overwrites the stored set with cases.
func (r *TestCaseRepository) Replace(ctx context.Context, cases model.TestCaseSet) error {
	if r.storage == nil {
		return appErr.New(appErr.StorageError).WithMessage("storage is not initialized")
	}
	if cases == nil {
		cases = model.TestCaseSet{}
	}
	data, err := json.MarshalIndent(cases, "", "    ")
	if err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "encode test cases failed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.storage.PutObject(ctx, r.bucket, r.key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return appErr.StorageWriteFailure(err, "test cases")
	}
	return nil
}

// List returns the stored set. A document that was never written, or is
// empty, yields an empty set.
func (r *TestCaseRepository) List(ctx context.Context) (model.TestCaseSet, error) {
	if r.storage == nil {
		return nil, appErr.New(appErr.StorageError).WithMessage("storage is not initialized")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	reader, err := r.storage.GetObject(ctx, r.bucket, r.key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return model.TestCaseSet{}, nil
		}
		return nil, appErr.StorageReadFailure(err, "test cases")
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, appErr.StorageReadFailure(err, "test cases")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return model.TestCaseSet{}, nil
	}
	var cases model.TestCaseSet
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageReadFailed, "decode test cases failed")
	}
	if cases == nil {
		cases = model.TestCaseSet{}
	}
	return cases, nil
}
