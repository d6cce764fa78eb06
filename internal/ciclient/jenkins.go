// Package ciclient talks to the Jenkins job that drives manual test runs.
package ciclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appErr "testbridge/pkg/errors"
)

const (
	DefaultTimeout = 10 * time.Second
	maxReplyBytes  = 64 << 10
)

// Config holds the Jenkins job location and credentials.
type Config struct {
	// JobURL is the job root, e.g. https://ci.example.com/job/manual-tests.
	JobURL  string        `yaml:"jobURL"`
	User    string        `yaml:"user"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Configured reports whether a job URL is set.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.JobURL) != ""
}

// Build describes a queued build.
type Build struct {
	StatusCode int
	// QueueURL is the Location header Jenkins returns for the queued item.
	QueueURL string
}

// JenkinsClient triggers and checks a Jenkins job over its REST API.
type JenkinsClient struct {
	jobURL string
	user   string
	token  string
	client *http.Client
}

// NewJenkinsClient creates a client. httpClient may be nil.
func NewJenkinsClient(cfg Config, httpClient *http.Client) (*JenkinsClient, error) {
	if !cfg.Configured() {
		return nil, appErr.New(appErr.CINotConfigured)
	}
	if _, err := url.ParseRequestURI(cfg.JobURL); err != nil {
		return nil, appErr.Wrapf(err, appErr.CINotConfigured, "invalid job url: %v", err)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &JenkinsClient{
		jobURL: strings.TrimRight(cfg.JobURL, "/"),
		user:   cfg.User,
		token:  cfg.Token,
		client: httpClient,
	}, nil
}

// TriggerBuild queues a build. With params it uses buildWithParameters.
func (c *JenkinsClient) TriggerBuild(ctx context.Context, params map[string]string) (Build, error) {
	endpoint := c.jobURL + "/build"
	var body io.Reader
	if len(params) > 0 {
		endpoint = c.jobURL + "/buildWithParameters"
		form := url.Values{}
		for k, v := range params {
			form.Set(k, v)
		}
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Build{}, appErr.Wrapf(err, appErr.CIRequestFailed, "build request failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := c.do(req)
	if err != nil {
		return Build{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	// Jenkins answers 201 Created with the queue item in Location.
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return Build{}, unexpectedReply(resp)
	}
	return Build{StatusCode: resp.StatusCode, QueueURL: resp.Header.Get("Location")}, nil
}

// Ping checks that the job exists and the credentials are accepted.
func (c *JenkinsClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL+"/api/json", nil)
	if err != nil {
		return appErr.Wrapf(err, appErr.CIRequestFailed, "build request failed: %v", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return unexpectedReply(resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplyBytes))
	return nil
}

func (c *JenkinsClient) do(req *http.Request) (*http.Response, error) {
	if c.user != "" || c.token != "" {
		req.SetBasicAuth(c.user, c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CIRequestFailed, "jenkins request failed: %v", err).
			WithDetail("url", req.URL.String())
	}
	return resp, nil
}

func unexpectedReply(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return appErr.New(appErr.CIUnexpectedReply).
		WithMessagef("jenkins replied %s", resp.Status).
		WithDetail("status", resp.StatusCode).
		WithDetail("body", strings.TrimSpace(string(snippet)))
}
