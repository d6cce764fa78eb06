// Package poller implements the CI side of the result handoff: poll the
// dashboard until a tester's Pass or Fail shows up.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpclient "testbridge/internal/cli/http"
	"testbridge/internal/dashboard/model"
)

const resultPath = "/get_test_result"

var (
	// ErrWaitTimeout is returned when no verdict arrives before the deadline.
	ErrWaitTimeout = errors.New("timed out waiting for test result")
	// ErrVerdictFail marks a wait that ended with a Fail verdict.
	ErrVerdictFail = errors.New("test result: Fail")
)

// Doer is the subset of the CLI HTTP client used for polling.
type Doer interface {
	Do(ctx context.Context, method, path, contentType string, headers map[string]string, body []byte) (httpclient.ResponseInfo, error)
}

// Attempt describes one poll.
type Attempt struct {
	N       int
	Verdict model.Verdict
	Err     error
}

// Options controls WaitForVerdict.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnAttempt is called after every poll.
	OnAttempt func(Attempt)
}

// WaitForVerdict polls until Pass or Fail is returned. Failed polls are
// retried; a consumed verdict is never read twice because the server hands
// it out once.
func WaitForVerdict(ctx context.Context, client Doer, opts Options) (model.Verdict, error) {
	if opts.Interval <= 0 {
		return "", fmt.Errorf("interval must be positive")
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		verdict, err := pollOnce(ctx, client)
		if opts.OnAttempt != nil {
			opts.OnAttempt(Attempt{N: n, Verdict: verdict, Err: err})
		}
		if err == nil && verdict.IsTerminal() {
			return verdict, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrWaitTimeout
			}
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func pollOnce(ctx context.Context, client Doer) (model.Verdict, error) {
	resp, err := client.Do(ctx, http.MethodGet, resultPath, "", nil, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var doc model.ResultDocument
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return "", fmt.Errorf("decode result failed: %w", err)
	}
	if !doc.TestResult.IsValid() {
		return "", fmt.Errorf("unknown test result %q", doc.TestResult)
	}
	return doc.TestResult, nil
}
