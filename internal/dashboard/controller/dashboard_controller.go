package controller

import (
	"errors"
	"net/http"

	"testbridge/internal/dashboard/model"
	"testbridge/internal/dashboard/service"
	appErr "testbridge/pkg/errors"
	"testbridge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const (
	maxJSONBodyBytes = 1 << 20
	// multipart framing allowance on top of the file itself
	multipartOverheadBytes = 64 << 10
)

// DashboardController handles the dashboard HTTP endpoints.
type DashboardController struct {
	dashboardService *service.DashboardService
}

// NewDashboardController creates a new DashboardController.
func NewDashboardController(dashboardService *service.DashboardService) *DashboardController {
	return &DashboardController{dashboardService: dashboardService}
}

// Index reports that the API is up.
func (h *DashboardController) Index(c *gin.Context) {
	response.Message(c, "Manual Testing Dashboard API is running")
}

// TestingStarted is called by CI when a run begins; it resets the verdict.
func (h *DashboardController) TestingStarted(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		body = nil
	}
	if err := h.dashboardService.TestingStarted(c.Request.Context(), service.DecodePayload(body)); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Testing started notification received")
}

// UploadTestCases accepts a multipart .xlsx upload in field "file".
func (h *DashboardController) UploadTestCases(c *gin.Context) {
	maxBytes := h.dashboardService.MaxUploadBytes()
	if c.Request.ContentLength > maxBytes+multipartOverheadBytes {
		response.Error(c, appErr.New(appErr.TestCaseTooLarge).WithDetail("max_bytes", maxBytes))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverheadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			response.Error(c, appErr.New(appErr.TestCaseTooLarge).WithDetail("max_bytes", maxBytes))
		case errors.Is(err, http.ErrMissingFile):
			response.BadRequest(c, "No file part")
		default:
			response.BadRequest(c, "Invalid multipart request")
		}
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErr.Wrapf(err, appErr.TestCaseUploadFailed, "open upload failed: %v", err))
		return
	}
	defer func() {
		_ = file.Close()
	}()

	cases, err := h.dashboardService.UploadTestCases(c.Request.Context(), service.UploadInput{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Content:  file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, UploadResponse{
		Message:   "File uploaded and test cases updated successfully!",
		TestCases: cases,
	})
}

// GetTestCases returns the current test case set.
func (h *DashboardController) GetTestCases(c *gin.Context) {
	cases, err := h.dashboardService.ListTestCases(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, cases)
}

// SubmitResult stores the tester's Pass or Fail.
func (h *DashboardController) SubmitResult(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes)
	var req SubmitResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.TestResult = nil
	}
	if _, err := h.dashboardService.SubmitResult(c.Request.Context(), req.TestResult); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Test result stored successfully")
}

// GetTestResult hands the current verdict to the poller, consuming Pass or Fail.
func (h *DashboardController) GetTestResult(c *gin.Context) {
	verdict, err := h.dashboardService.ConsumeResult(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, model.ResultDocument{TestResult: verdict})
}

// ResetTestResult puts the verdict back to Pending.
func (h *DashboardController) ResetTestResult(c *gin.Context) {
	if err := h.dashboardService.ResetResult(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Test result reset to 'Pending'")
}

// SendNotification logs a message for developers.
func (h *DashboardController) SendNotification(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes)
	var req NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Message = nil
	}
	h.dashboardService.Notify(c.Request.Context(), req.Message)
	response.Message(c, "Developer notified")
}

// RegisterRoutes mounts the dashboard endpoints on r.
func (h *DashboardController) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.Index)
	r.POST("/testing_started", h.TestingStarted)
	r.POST("/upload_test_cases", h.UploadTestCases)
	r.GET("/get_test_cases", h.GetTestCases)
	r.POST("/submit_result", h.SubmitResult)
	r.GET("/get_test_result", h.GetTestResult)
	r.POST("/reset_test_result", h.ResetTestResult)
	r.POST("/send_notification", h.SendNotification)
}
