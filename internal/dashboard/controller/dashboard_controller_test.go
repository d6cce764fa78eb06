package controller

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"testbridge/internal/common/http/middleware"
	"testbridge/internal/common/storage"
	"testbridge/internal/dashboard/model"
	"testbridge/internal/dashboard/repository"
	"testbridge/internal/dashboard/service"
	"testbridge/internal/dashboard/spreadsheet"
	appErr "testbridge/pkg/errors"
	"testbridge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

func newRouter(t *testing.T, maxUpload int64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	local, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new local storage failed: %v", err)
	}
	svc, err := service.NewDashboardService(service.Config{
		ResultStore:    repository.NewMemoryResultStore(),
		TestCases:      repository.NewTestCaseRepository(local, "testbridge", ""),
		Storage:        local,
		Bucket:         "testbridge",
		Archive:        service.ArchiveConfig{Enabled: true},
		Sheet:          spreadsheet.DefaultOptions(),
		MaxUploadBytes: maxUpload,
	})
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	r := gin.New()
	r.Use(middleware.TraceContextMiddleware())
	NewDashboardController(svc).RegisterRoutes(r)
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body failed: %v (%s)", err, rec.Body.String())
	}
}

func resultOf(t *testing.T, r http.Handler) model.Verdict {
	t.Helper()
	rec := doJSON(r, http.MethodGet, "/get_test_result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get_test_result status = %d", rec.Code)
	}
	var doc model.ResultDocument
	decode(t, rec, &doc)
	return doc.TestResult
}

func workbookBytes(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row failed: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook failed: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file failed: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file failed: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload_test_cases", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestIndex(t *testing.T) {
	r := newRouter(t, 1<<20)
	rec := doJSON(r, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body response.MessageBody
	decode(t, rec, &body)
	if body.Message != "Manual Testing Dashboard API is running" {
		t.Fatalf("message = %q", body.Message)
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("expected trace header")
	}
}

func TestSubmitAndConsumeOverHTTP(t *testing.T) {
	r := newRouter(t, 1<<20)

	if got := resultOf(t, r); got != model.VerdictPending {
		t.Fatalf("initial result = %q", got)
	}

	rec := doJSON(r, http.MethodPost, "/submit_result", `{"test_result":"pass"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d (%s)", rec.Code, rec.Body.String())
	}
	if got := resultOf(t, r); got != model.VerdictPass {
		t.Fatalf("first poll = %q", got)
	}
	if got := resultOf(t, r); got != model.VerdictPending {
		t.Fatalf("second poll = %q", got)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	r := newRouter(t, 1<<20)
	if rec := doJSON(r, http.MethodPost, "/submit_result", `{"test_result":"Fail"}`); rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d", rec.Code)
	}

	bodies := []string{
		``,
		`{}`,
		`not json`,
		`{"test_result":"maybe"}`,
		`{"test_result":"pending"}`,
		`{"test_result":1}`,
	}
	for _, body := range bodies {
		rec := doJSON(r, http.MethodPost, "/submit_result", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d", body, rec.Code)
		}
		var errBody response.ErrorBody
		decode(t, rec, &errBody)
		if errBody.Code != appErr.InvalidVerdict {
			t.Fatalf("body %q: code = %d", body, errBody.Code)
		}
	}

	if got := resultOf(t, r); got != model.VerdictFail {
		t.Fatalf("rejected submits must leave Fail in place, got %q", got)
	}
}

func TestTestingStartedAndResetClearVerdict(t *testing.T) {
	r := newRouter(t, 1<<20)
	for _, tc := range []struct {
		path string
		body string
		msg  string
	}{
		{"/testing_started", `{"job":"nightly"}`, "Testing started notification received"},
		{"/testing_started", `garbage`, "Testing started notification received"},
		{"/reset_test_result", ``, "Test result reset to 'Pending'"},
	} {
		doJSON(r, http.MethodPost, "/submit_result", `{"test_result":"Pass"}`)
		rec := doJSON(r, http.MethodPost, tc.path, tc.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", tc.path, rec.Code)
		}
		var body response.MessageBody
		decode(t, rec, &body)
		if body.Message != tc.msg {
			t.Fatalf("%s message = %q", tc.path, body.Message)
		}
		if got := resultOf(t, r); got != model.VerdictPending {
			t.Fatalf("%s should reset, got %q", tc.path, got)
		}
	}
}

func TestUploadAndListTestCases(t *testing.T) {
	r := newRouter(t, 1<<20)

	rec := doJSON(r, http.MethodGet, "/get_test_cases", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %d %s", rec.Code, rec.Body.String())
	}

	data := workbookBytes(t,
		[]interface{}{"ID", "Description", "Status", "Notes"},
		[]interface{}{"TC1", "Login works", "Pending", "ignored"},
		[]interface{}{"TC2", "Logout works"},
	)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, uploadRequest(t, "file", "cases.xlsx", data))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d (%s)", rec.Code, rec.Body.String())
	}
	var uploaded UploadResponse
	decode(t, rec, &uploaded)
	if uploaded.Message != "File uploaded and test cases updated successfully!" {
		t.Fatalf("message = %q", uploaded.Message)
	}
	want := model.TestCaseSet{
		{ID: "TC1", Description: "Login works", Status: "Pending"},
		{ID: "TC2", Description: "Logout works", Status: ""},
	}
	if len(uploaded.TestCases) != len(want) {
		t.Fatalf("test_cases = %+v", uploaded.TestCases)
	}
	for i := range want {
		if uploaded.TestCases[i] != want[i] {
			t.Fatalf("case %d = %+v, want %+v", i, uploaded.TestCases[i], want[i])
		}
	}

	rec = doJSON(r, http.MethodGet, "/get_test_cases", "")
	var listed model.TestCaseSet
	decode(t, rec, &listed)
	if len(listed) != 2 || listed[1] != want[1] {
		t.Fatalf("listed = %+v", listed)
	}
}

func TestUploadRejections(t *testing.T) {
	r := newRouter(t, 4<<10)
	good := workbookBytes(t,
		[]interface{}{"ID", "Description", "Status"},
		[]interface{}{"TC1", "Login works", "Pending"},
	)

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantCode   appErr.ErrorCode
	}{
		{"missing file field", uploadRequest(t, "other", "cases.xlsx", good), http.StatusBadRequest, appErr.InvalidParams},
		{"wrong extension", uploadRequest(t, "file", "cases.txt", good), http.StatusBadRequest, appErr.InvalidFormat},
		{"not a workbook", uploadRequest(t, "file", "cases.xlsx", []byte("hello")), http.StatusBadRequest, appErr.InvalidFormat},
		{"too large", uploadRequest(t, "file", "cases.xlsx", bytes.Repeat([]byte("x"), 128<<10)), http.StatusRequestEntityTooLarge, appErr.TestCaseTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, tt.req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var body response.ErrorBody
			decode(t, rec, &body)
			if body.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", body.Code, tt.wantCode)
			}
			if body.TraceID == "" {
				t.Fatalf("expected trace_id in error body")
			}
		})
	}
}

func TestSendNotification(t *testing.T) {
	r := newRouter(t, 1<<20)
	for _, body := range []string{`{"message":"build 7 ready"}`, `{}`, ``} {
		rec := doJSON(r, http.MethodPost, "/send_notification", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("body %q: status = %d", body, rec.Code)
		}
		var msg response.MessageBody
		decode(t, rec, &msg)
		if msg.Message != "Developer notified" {
			t.Fatalf("message = %q", msg.Message)
		}
	}
}

func TestConcurrentPollersSeeVerdictOnce(t *testing.T) {
	r := newRouter(t, 1<<20)
	doJSON(r, http.MethodPost, "/submit_result", `{"test_result":"Fail"}`)

	const pollers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fails int
	)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := doJSON(r, http.MethodGet, "/get_test_result", "")
			var doc model.ResultDocument
			_ = json.Unmarshal(rec.Body.Bytes(), &doc)
			if doc.TestResult == model.VerdictFail {
				mu.Lock()
				fails++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if fails != 1 {
		t.Fatalf("Fail delivered %d times, want 1", fails)
	}
}
