package model

import (
	"strings"
	"unicode"
	"unicode/utf8"

	appErr "testbridge/pkg/errors"
)

// Verdict is the outcome of a manual test run as seen by the CI poller.
type Verdict string

const (
	VerdictPending Verdict = "Pending"
	VerdictPass    Verdict = "Pass"
	VerdictFail    Verdict = "Fail"
)

// IsTerminal reports whether v is a tester decision that a poll should consume.
func (v Verdict) IsTerminal() bool {
	return v == VerdictPass || v == VerdictFail
}

// IsValid reports whether v is one of the three known verdicts.
func (v Verdict) IsValid() bool {
	return v == VerdictPending || v.IsTerminal()
}

func (v Verdict) String() string {
	return string(v)
}

// NormalizeVerdictText upper-cases the first letter and lower-cases the rest.
// "pASS" becomes "Pass"; surrounding whitespace is not trimmed.
func NormalizeVerdictText(raw string) string {
	if raw == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(raw)
	return string(unicode.ToUpper(first)) + strings.ToLower(raw[size:])
}

// ParseVerdict normalizes raw and accepts only Pass or Fail.
// Pending cannot be submitted; it is reached through reset or consume.
func ParseVerdict(raw string) (Verdict, error) {
	v := Verdict(NormalizeVerdictText(raw))
	if !v.IsTerminal() {
		return "", appErr.InvalidVerdictError(raw)
	}
	return v, nil
}

// ParseSubmittedVerdict handles an optional request field; nil means the
// field was absent.
func ParseSubmittedVerdict(raw *string) (Verdict, error) {
	if raw == nil {
		return "", appErr.New(appErr.InvalidVerdict).WithMessage("Invalid request. 'test_result' is required")
	}
	return ParseVerdict(*raw)
}
