package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"testbridge/internal/common/storage"
	"testbridge/internal/dashboard/model"
	"testbridge/internal/dashboard/repository"
	"testbridge/internal/dashboard/spreadsheet"
	appErr "testbridge/pkg/errors"
	"testbridge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultMaxUploadBytes = 10 << 20
	defaultArchivePrefix  = "uploads/"
	defaultNotification   = "No message provided"
	maxLoggedPayloadBytes = 4096
)

// TestCaseRepository stores the current TestCaseSet.
type TestCaseRepository interface {
	Replace(ctx context.Context, cases model.TestCaseSet) error
	List(ctx context.Context) (model.TestCaseSet, error)
}

// ArchiveConfig controls keeping a copy of every accepted spreadsheet.
type ArchiveConfig struct {
	Enabled bool
	Prefix  string
	// Keep is the number of most recent archives retained; values <= 0 keep all.
	Keep int
}

// TimeoutConfig holds timeout settings for backend calls.
type TimeoutConfig struct {
	Store   time.Duration
	Storage time.Duration
}

// Config holds dashboard service dependencies and settings.
type Config struct {
	ResultStore repository.ResultStore
	TestCases   TestCaseRepository
	Storage     storage.ObjectStorage

	Bucket         string
	Archive        ArchiveConfig
	Sheet          spreadsheet.Options
	MaxUploadBytes int64
	Timeouts       TimeoutConfig

	// Now is used for archive names; time.Now when nil.
	Now func() time.Time
}

// DashboardService implements the manual testing handoff between the
// dashboard, testers and the CI poller.
type DashboardService struct {
	resultStore repository.ResultStore
	testCases   TestCaseRepository
	storage     storage.ObjectStorage

	bucket         string
	archive        ArchiveConfig
	sheet          spreadsheet.Options
	maxUploadBytes int64
	timeouts       TimeoutConfig
	now            func() time.Time
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(cfg Config) (*DashboardService, error) {
	if cfg.ResultStore == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if cfg.TestCases == nil {
		return nil, fmt.Errorf("test case repository is required")
	}
	if cfg.Archive.Enabled && cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required when archiving uploads")
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = defaultArchivePrefix
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DashboardService{
		resultStore:    cfg.ResultStore,
		testCases:      cfg.TestCases,
		storage:        cfg.Storage,
		bucket:         cfg.Bucket,
		archive:        cfg.Archive,
		sheet:          cfg.Sheet,
		maxUploadBytes: cfg.MaxUploadBytes,
		timeouts:       cfg.Timeouts,
		now:            cfg.Now,
	}, nil
}

// MaxUploadBytes is the largest spreadsheet accepted by UploadTestCases.
func (s *DashboardService) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// TestingStarted marks the start of a new run. The payload is only logged.
func (s *DashboardService) TestingStarted(ctx context.Context, payload []byte) error {
	logger.Info(ctx, "testing started", zap.ByteString("payload", truncate(payload, maxLoggedPayloadBytes)))
	return s.ResetResult(ctx)
}

// ResetResult puts the current verdict back to Pending.
func (s *DashboardService) ResetResult(ctx context.Context) error {
	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()
	if err := s.resultStore.Reset(storeCtx); err != nil {
		return err
	}
	logger.Info(ctx, "test result reset", zap.String("test_result", model.VerdictPending.String()))
	return nil
}

// SubmitResult validates the tester's verdict and stores it for the CI poller.
// raw is nil when the request did not carry the field at all.
func (s *DashboardService) SubmitResult(ctx context.Context, raw *string) (model.Verdict, error) {
	verdict, err := model.ParseSubmittedVerdict(raw)
	if err != nil {
		return "", err
	}
	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()
	if err := s.resultStore.Submit(storeCtx, verdict); err != nil {
		return "", err
	}
	logger.Info(ctx, "test result stored", zap.String("test_result", verdict.String()))
	return verdict, nil
}

// ConsumeResult returns the current verdict; a Pass or Fail is handed out
// once and the slot reverts to Pending.
func (s *DashboardService) ConsumeResult(ctx context.Context) (model.Verdict, error) {
	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()
	verdict, err := s.resultStore.Consume(storeCtx)
	if err != nil {
		return "", err
	}
	if verdict.IsTerminal() {
		logger.Info(ctx, "test result delivered to poller", zap.String("test_result", verdict.String()))
	} else {
		logger.Debug(ctx, "test result polled", zap.String("test_result", verdict.String()))
	}
	return verdict, nil
}

// ListTestCases returns the current TestCaseSet, empty when nothing was uploaded.
func (s *DashboardService) ListTestCases(ctx context.Context) (model.TestCaseSet, error) {
	storageCtx, cancel := withTimeout(ctx, s.timeouts.Storage)
	defer cancel()
	return s.testCases.List(storageCtx)
}

// Notify logs a developer notification and returns the logged message.
func (s *DashboardService) Notify(ctx context.Context, message *string) string {
	msg := defaultNotification
	if message != nil && *message != "" {
		msg = *message
	}
	logger.Info(ctx, "developer notification", zap.String("message", msg))
	return msg
}

// DecodePayload renders a request body for logging, keeping valid JSON as-is.
func DecodePayload(body []byte) json.RawMessage {
	if len(body) == 0 || !json.Valid(body) {
		quoted, _ := json.Marshal(string(truncate(body, maxLoggedPayloadBytes)))
		return quoted
	}
	return body
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

func internalError(err error, msg string) error {
	if appErr.GetCode(err) != appErr.InternalServerError {
		return err
	}
	return appErr.Wrapf(err, appErr.InternalServerError, "%s: %v", msg, err)
}
