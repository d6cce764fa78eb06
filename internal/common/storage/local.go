package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements ObjectStorage on a directory tree laid out as
// <root>/<bucket>/<objectKey>. Puts go through a temp file and rename so a
// reader never sees a half-written object.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage root failed: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

func (s *LocalStorage) objectPath(bucket, objectKey string) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("objectKey is required")
	}
	clean := filepath.Clean(filepath.FromSlash(objectKey))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid objectKey %q", objectKey)
	}
	return filepath.Join(s.root, bucket, clean), nil
}

func (s *LocalStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	if reader == nil {
		return fmt.Errorf("reader is required")
	}
	path, err := s.objectPath(bucket, objectKey)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create object dir failed: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp object failed: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	src := reader
	if sizeBytes >= 0 {
		src = io.LimitReader(reader, sizeBytes)
	}
	written, err := io.Copy(tmp, src)
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write object failed: %w", err)
	}
	if sizeBytes >= 0 && written != sizeBytes {
		_ = tmp.Close()
		return fmt.Errorf("short object write: %d of %d bytes", written, sizeBytes)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync object failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object failed: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("commit object failed: %w", err)
	}
	return nil
}

func (s *LocalStorage) GetObject(ctx context.Context, bucket, objectKey string) (ObjectReader, error) {
	path, err := s.objectPath(bucket, objectKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open object failed: %w", err)
	}
	return f, nil
}

func (s *LocalStorage) StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error) {
	path, err := s.objectPath(bucket, objectKey)
	if err != nil {
		return ObjectStat{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectStat{}, ErrObjectNotFound
		}
		return ObjectStat{}, fmt.Errorf("stat object failed: %w", err)
	}
	return ObjectStat{
		SizeBytes:   info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
	}, nil
}

func (s *LocalStorage) ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo {
	out := make(chan ObjectInfo, 16)
	base := filepath.Join(s.root, bucket)

	go func() {
		defer close(out)
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			rel, err := filepath.Rel(base, path)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(rel)
			if !strings.HasPrefix(key, prefix) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			select {
			case out <- ObjectInfo{Key: key, SizeBytes: info.Size()}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			select {
			case out <- ObjectInfo{Err: fmt.Errorf("list objects failed: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

func (s *LocalStorage) RemoveObjects(ctx context.Context, bucket string, keys []string) error {
	for _, key := range keys {
		if key == "" {
			continue
		}
		path, err := s.objectPath(bucket, key)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove object failed: %w", err)
		}
	}
	return nil
}
