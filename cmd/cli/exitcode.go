package main

import (
	"errors"

	"testbridge/internal/cli/poller"
	"testbridge/internal/cli/repl"
)

// Exit codes for one-shot mode, so CI steps can branch on the outcome.
const (
	exitOK = iota
	exitError
	exitVerdictFail
	exitWaitTimeout
	exitRequestRejected
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, poller.ErrVerdictFail):
		return exitVerdictFail
	case errors.Is(err, poller.ErrWaitTimeout):
		return exitWaitTimeout
	case errors.Is(err, repl.ErrRequestRejected):
		return exitRequestRejected
	default:
		return exitError
	}
}
