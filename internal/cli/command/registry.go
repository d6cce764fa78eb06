package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"sort"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "api",
			Action:       "ping",
			Summary:      "check the dashboard is running",
			Method:       "GET",
			PathTemplate: "/",
		},
		{
			Service:      "run",
			Action:       "start",
			Summary:      "announce a new test run and reset the verdict",
			Method:       "POST",
			PathTemplate: "/testing_started",
			Fields: []Field{
				{Name: "payload", Aliases: []string{"json"}, Prompt: "payload (JSON)", Type: FieldJSON},
				{Name: "payload_file", Prompt: "payload_file", Type: FieldFile},
			},
		},
		{
			Service:      "cases",
			Action:       "list",
			Summary:      "show the uploaded test cases",
			Method:       "GET",
			PathTemplate: "/get_test_cases",
		},
		{
			Service:      "cases",
			Action:       "upload",
			Summary:      "upload an .xlsx sheet of test cases",
			Method:       "POST",
			PathTemplate: "/upload_test_cases",
			Fields: []Field{
				{Name: "file", Aliases: []string{"path"}, Prompt: "file (.xlsx)", Type: FieldFile, Required: true},
			},
		},
		{
			Service:      "result",
			Action:       "submit",
			Summary:      "store Pass or Fail for the poller",
			Method:       "POST",
			PathTemplate: "/submit_result",
			Fields: []Field{
				{Name: "test_result", Aliases: []string{"result", "verdict"}, Prompt: "test_result (Pass/Fail)", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "result",
			Action:       "get",
			Summary:      "poll the verdict once (consumes Pass/Fail)",
			Method:       "GET",
			PathTemplate: "/get_test_result",
		},
		{
			Service:      "result",
			Action:       "reset",
			Summary:      "reset the verdict to Pending",
			Method:       "POST",
			PathTemplate: "/reset_test_result",
		},
		{
			Service:      "result",
			Action:       "wait",
			Summary:      "poll until a tester submits Pass or Fail",
			Local:        true,
			Method:       "GET",
			PathTemplate: "/get_test_result",
			Fields: []Field{
				{Name: "interval", Prompt: "interval", Type: FieldDuration},
				{Name: "timeout", Prompt: "timeout", Type: FieldDuration},
			},
		},
		{
			Service:      "notify",
			Action:       "send",
			Summary:      "log a message for developers",
			Method:       "POST",
			PathTemplate: "/send_notification",
			Fields: []Field{
				{Name: "message", Aliases: []string{"msg"}, Prompt: "message", Type: FieldString},
			},
		},
		{
			Service: "ci",
			Action:  "trigger",
			Summary: "queue a Jenkins build",
			Local:   true,
			Fields: []Field{
				{Name: "params", Prompt: "params (A=1,B=2)", Type: FieldKeyValueList},
			},
		},
		{
			Service: "ci",
			Action:  "ping",
			Summary: "check the Jenkins job and credentials",
			Local:   true,
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// SortedKeys returns registry keys in display order.
func SortedKeys(commands map[string]Command) []string {
	keys := make([]string, 0, len(commands))
	for key := range commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	if cmd.Local {
		return RequestSpec{}, fmt.Errorf("%s is not a dashboard request", cmd.Key())
	}
	params.Canonicalize(cmd.Fields)

	spec := RequestSpec{
		Method:  cmd.Method,
		Path:    cmd.PathTemplate,
		Headers: map[string]string{},
	}
	if cmd.Method == "GET" {
		return spec, nil
	}

	switch cmd.Key() {
	case "cases upload":
		body, contentType, err := buildUploadBody(params.Get("file"))
		if err != nil {
			return RequestSpec{}, err
		}
		spec.Body = body
		spec.ContentType = contentType
		return spec, nil
	case "run start":
		body, err := buildRunStartBody(params)
		if err != nil {
			return RequestSpec{}, err
		}
		spec.Body = body
		return spec, nil
	}

	payload := buildPayload(cmd, params)
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
		}
		spec.Body = body
	}
	return spec, nil
}

func buildPayload(cmd Command, params Params) interface{} {
	switch cmd.Key() {
	case "result submit":
		return map[string]string{
			"test_result": params.Get("test_result"),
		}
	case "notify send":
		if !params.Has("message") {
			return map[string]string{}
		}
		return map[string]string{
			"message": params.Get("message"),
		}
	}
	return nil
}

func buildRunStartBody(params Params) ([]byte, error) {
	raw := params.Get("payload")
	if raw == "" && params.Get("payload_file") != "" {
		data, err := ReadFile(params.Get("payload_file"))
		if err != nil {
			return nil, err
		}
		raw = string(data)
	}
	if raw == "" {
		return []byte("{}"), nil
	}
	payload, err := ParseJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return payload, nil
}

func buildUploadBody(path string) ([]byte, string, error) {
	if path == "" {
		return nil, "", fmt.Errorf("file is required")
	}
	data, err := ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file failed: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form file failed: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body failed: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
