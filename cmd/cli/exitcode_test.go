package main

import (
	"errors"
	"fmt"
	"testing"

	"testbridge/internal/cli/poller"
	"testbridge/internal/cli/repl"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"verdict fail", poller.ErrVerdictFail, exitVerdictFail},
		{"wait timeout", poller.ErrWaitTimeout, exitWaitTimeout},
		{"rejected request", fmt.Errorf("%w: HTTP 400", repl.ErrRequestRejected), exitRequestRejected},
		{"other", errors.New("dial tcp: refused"), exitError},
	}
	seen := map[int]string{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Fatalf("exitCode = %d, want %d", got, tt.want)
			}
		})
		if prev, ok := seen[tt.want]; ok {
			t.Fatalf("%s and %s share exit code %d", prev, tt.name, tt.want)
		}
		seen[tt.want] = tt.name
	}
}
