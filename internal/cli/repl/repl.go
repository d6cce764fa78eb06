package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"testbridge/internal/ciclient"
	"testbridge/internal/cli/command"
	httpclient "testbridge/internal/cli/http"
	"testbridge/internal/cli/poller"
	"testbridge/internal/dashboard/model"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const defaultPrompt = "testbridge> "

// ErrRequestRejected is returned when the dashboard answers with a non-2xx status.
var ErrRequestRejected = errors.New("request rejected")

// Options holds session settings.
type Options struct {
	PrettyJSON   bool
	HistoryFile  string
	PollInterval time.Duration
	PollTimeout  time.Duration
	CI           ciclient.Config
}

// Session holds REPL state.
type Session struct {
	client   *httpclient.Client
	commands map[string]command.Command
	opts     Options

	jenkins    *ciclient.JenkinsClient
	jenkinsErr error

	rl  *readline.Instance
	out io.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, opts Options) *Session {
	s := &Session{
		client:   client,
		commands: commands,
		opts:     opts,
	}
	s.jenkins, s.jenkinsErr = ciclient.NewJenkinsClient(opts.CI, nil)
	return s
}

// Run reads commands until exit or EOF.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          defaultPrompt,
		HistoryFile:     s.opts.HistoryFile,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.rl = rl
	s.out = rl.Stdout()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if quit, handled := s.handleSystemCommand(line); handled {
			if quit {
				s.printLine("bye")
				return nil
			}
			continue
		}

		if err := s.Execute(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) completer() readline.AutoCompleter {
	byService := map[string][]readline.PrefixCompleterInterface{}
	var services []string
	for _, key := range command.SortedKeys(s.commands) {
		cmd := s.commands[key]
		if _, ok := byService[cmd.Service]; !ok {
			services = append(services, cmd.Service)
		}
		byService[cmd.Service] = append(byService[cmd.Service], readline.PcItem(cmd.Action))
	}
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("tester")),
		readline.PcItem("show", readline.PcItem("config")),
	}
	for _, service := range services {
		items = append(items, readline.PcItem(service, byService[service]...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) handleSystemCommand(line string) (quit bool, handled bool) {
	switch line {
	case "exit", "quit":
		return true, true
	case "help":
		s.printHelp()
		return false, true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return false, true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return false, true
	}
	return false, false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout|tester")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:5000")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "tester":
		tester := ""
		if len(parts) > 1 {
			tester = parts[1]
		}
		s.client.SetTester(tester)
		s.printLine("tester set to %q", tester)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("poll: every %s, up to %s", s.opts.PollInterval, s.opts.PollTimeout)
		if s.opts.CI.Configured() {
			s.printLine("ci: %s (user %q)", s.opts.CI.JobURL, s.opts.CI.User)
		} else {
			s.printLine("ci: <not configured>")
		}
	default:
		s.printLine("usage: show config")
	}
}

// Execute runs one "<service> <action> key=value ..." line.
func (s *Session) Execute(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	key := fmt.Sprintf("%s %s", tokens[0], tokens[1])
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	params, err := command.ParseTokens(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}

	if cmd.Local {
		return s.runLocal(ctx, cmd, params)
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.ContentType, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: HTTP %d", ErrRequestRejected, resp.StatusCode)
	}
	return nil
}

func (s *Session) runLocal(ctx context.Context, cmd command.Command, params command.Params) error {
	switch cmd.Key() {
	case "result wait":
		return s.waitForResult(ctx, params)
	case "ci trigger":
		return s.triggerBuild(ctx, params)
	case "ci ping":
		if s.jenkins == nil {
			return s.jenkinsErr
		}
		if err := s.jenkins.Ping(ctx); err != nil {
			return err
		}
		s.printLine("jenkins job reachable")
		return nil
	}
	return fmt.Errorf("unsupported local command: %s", cmd.Key())
}

func (s *Session) waitForResult(ctx context.Context, params command.Params) error {
	interval, err := command.ParseDuration(params.Get("interval"), s.opts.PollInterval)
	if err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}
	timeout, err := command.ParseDuration(params.Get("timeout"), s.opts.PollTimeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	s.printLine("waiting for test result (every %s, up to %s)", interval, timeout)
	verdict, err := poller.WaitForVerdict(ctx, s.client, poller.Options{
		Interval: interval,
		Timeout:  timeout,
		OnAttempt: func(a poller.Attempt) {
			if a.Err != nil {
				s.printLine("poll %d failed: %v", a.N, a.Err)
			}
		},
	})
	if err != nil {
		return err
	}
	s.printLine("test result: %s", verdict)
	if verdict == model.VerdictFail {
		return poller.ErrVerdictFail
	}
	return nil
}

func (s *Session) triggerBuild(ctx context.Context, params command.Params) error {
	if s.jenkins == nil {
		return s.jenkinsErr
	}
	buildParams, err := command.ParseKeyValueList(params.Get("params"))
	if err != nil {
		return err
	}
	build, err := s.jenkins.TriggerBuild(ctx, buildParams)
	if err != nil {
		return err
	}
	if build.QueueURL != "" {
		s.printLine("build queued: %s", build.QueueURL)
	} else {
		s.printLine("build queued (HTTP %d)", build.StatusCode)
	}
	return nil
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required {
			continue
		}
		if params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(prompt string) (string, error) {
	if s.rl == nil {
		return "", fmt.Errorf("%s is required", prompt)
	}
	s.rl.SetPrompt(prompt + ": ")
	defer s.rl.SetPrompt(defaultPrompt)
	line, err := s.rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	if s.opts.PrettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | set base|timeout|tester | show config")
	s.printLine("commands:")
	for _, key := range command.SortedKeys(s.commands) {
		s.printLine("  %-14s %s", key, s.commands[key].Summary)
	}
	s.printLine("examples:")
	s.printLine("  cases upload file=./test_cases.xlsx")
	s.printLine("  result submit test_result=Pass")
	s.printLine("  result wait interval=10s timeout=1h")
	s.printLine("  ci trigger params=BRANCH=main")
}

// SetOutput redirects output; used when no terminal is attached.
func (s *Session) SetOutput(w io.Writer) {
	s.out = w
}

func (s *Session) printLine(format string, args ...interface{}) {
	if s.out == nil {
		return
	}
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
