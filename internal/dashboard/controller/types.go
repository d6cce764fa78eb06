package controller

import "testbridge/internal/dashboard/model"

// SubmitResultRequest defines the submit payload. TestResult is nil when absent.
type SubmitResultRequest struct {
	TestResult *string `json:"test_result"`
}

// NotificationRequest defines the notification payload.
type NotificationRequest struct {
	Message *string `json:"message"`
}

// UploadResponse defines the upload response payload.
type UploadResponse struct {
	Message   string            `json:"message"`
	TestCases model.TestCaseSet `json:"test_cases"`
}
