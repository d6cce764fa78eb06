package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"testbridge/internal/common/storage"
	"testbridge/internal/dashboard/model"
	"testbridge/internal/dashboard/spreadsheet"
	appErr "testbridge/pkg/errors"
	"testbridge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	xlsxExtension   = ".xlsx"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	archiveTimeFmt  = "20060102150405"
	// maxArchiveSeq bounds the suffixes tried for uploads within one second.
	maxArchiveSeq = 99
)

// UploadInput carries one uploaded spreadsheet.
type UploadInput struct {
	Filename string
	// Size is the declared size; -1 when unknown.
	Size    int64
	Content io.Reader
}

// UploadTestCases parses the workbook and replaces the current TestCaseSet.
// Nothing is stored when validation or parsing fails.
func (s *DashboardService) UploadTestCases(ctx context.Context, in UploadInput) (model.TestCaseSet, error) {
	if strings.TrimSpace(in.Filename) == "" || in.Content == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("No selected file")
	}
	if !strings.EqualFold(path.Ext(in.Filename), xlsxExtension) {
		return nil, appErr.New(appErr.InvalidFormat).
			WithMessage("Invalid file format. Please upload an .xlsx file").
			WithDetail("filename", in.Filename)
	}
	if in.Size > s.maxUploadBytes {
		return nil, s.tooLarge(in.Size)
	}

	data, err := io.ReadAll(io.LimitReader(in.Content, s.maxUploadBytes+1))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.TestCaseUploadFailed, "read upload failed: %v", err)
	}
	if int64(len(data)) > s.maxUploadBytes {
		return nil, s.tooLarge(int64(len(data)))
	}

	cases, err := spreadsheet.Parse(bytes.NewReader(data), s.sheet)
	if err != nil {
		logger.Warn(ctx, "parse test cases failed", zap.String("filename", in.Filename), zap.Error(err))
		return nil, err
	}

	storageCtx, cancel := withTimeout(ctx, s.timeouts.Storage)
	defer cancel()
	if err := s.testCases.Replace(storageCtx, cases); err != nil {
		return nil, internalError(err, "store test cases failed")
	}
	s.archiveUpload(ctx, data)

	logger.Info(ctx, "test cases uploaded",
		zap.String("filename", in.Filename),
		zap.Int("size_bytes", len(data)),
		zap.Int("cases", len(cases)),
	)
	return cases, nil
}

func (s *DashboardService) tooLarge(size int64) error {
	return appErr.New(appErr.TestCaseTooLarge).
		WithDetail("size_bytes", size).
		WithDetail("max_bytes", s.maxUploadBytes)
}

// archiveUpload keeps a timestamped copy of the workbook. Failures are logged
// and do not reject the upload.
func (s *DashboardService) archiveUpload(ctx context.Context, data []byte) {
	if !s.archive.Enabled {
		return
	}
	storageCtx, cancel := withTimeout(ctx, s.timeouts.Storage)
	defer cancel()
	key, err := s.archiveKey(storageCtx)
	if err != nil {
		logger.Warn(ctx, "archive upload failed", zap.Error(err))
		return
	}
	if err := s.storage.PutObject(storageCtx, s.bucket, key, bytes.NewReader(data), int64(len(data)), xlsxContentType); err != nil {
		logger.Warn(ctx, "archive upload failed", zap.String("key", key), zap.Error(err))
		return
	}
	logger.Debug(ctx, "upload archived", zap.String("key", key))
	s.pruneArchive(storageCtx)
}

// archiveKey returns an unused archive key. Uploads landing in the same second
// get a two-digit suffix, which keeps keys sorting by upload order.
func (s *DashboardService) archiveKey(ctx context.Context) (string, error) {
	base := s.archive.Prefix + "test_cases_" + s.now().Format(archiveTimeFmt)
	for seq := 0; seq <= maxArchiveSeq; seq++ {
		key := base + xlsxExtension
		if seq > 0 {
			key = fmt.Sprintf("%s_%02d%s", base, seq, xlsxExtension)
		}
		_, err := s.storage.StatObject(ctx, s.bucket, key)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return key, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat archive %s failed: %w", key, err)
		}
	}
	return "", fmt.Errorf("no free archive key for %s", base)
}

// pruneArchive drops the oldest archives beyond archive.Keep. Archive names
// sort by upload time.
func (s *DashboardService) pruneArchive(ctx context.Context) {
	if s.archive.Keep <= 0 {
		return
	}
	var keys []string
	for obj := range s.storage.ListObjects(ctx, s.bucket, s.archive.Prefix) {
		if obj.Err != nil {
			logger.Warn(ctx, "list archive failed", zap.Error(obj.Err))
			return
		}
		if strings.HasSuffix(obj.Key, xlsxExtension) {
			keys = append(keys, obj.Key)
		}
	}
	if len(keys) <= s.archive.Keep {
		return
	}
	sort.Strings(keys)
	stale := keys[:len(keys)-s.archive.Keep]
	if err := s.storage.RemoveObjects(ctx, s.bucket, stale); err != nil {
		logger.Warn(ctx, "prune archive failed", zap.Int("stale", len(stale)), zap.Error(err))
		return
	}
	logger.Debug(ctx, "archive pruned", zap.Int("removed", len(stale)))
}
