package command

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"freqgate/internal/config"
	"freqgate/internal/httpx"
	"freqgate/pkg/logger"
)

// Default query sizes for the read commands.
const (
	DefaultRecentLimit = 5
	DefaultLogLines    = 20
)

// Executor runs commands against the job-execution controller. All outbound
// calls go through the resilient request client; failures are converted into
// user-readable results and never propagate as errors.
type Executor struct {
	client           *httpx.Client
	controllerURL    string
	defaultTimerange string
	defaultConfig    string
	probeDelay       time.Duration
}

// NewExecutor creates an Executor for the configured controller.
func NewExecutor(client *httpx.Client, cfg config.ControllerConfig) *Executor {
	e := &Executor{
		client:           client,
		controllerURL:    strings.TrimRight(cfg.URL, "/"),
		defaultTimerange: cfg.DefaultTimerange,
		defaultConfig:    cfg.DefaultConfig,
		probeDelay:       cfg.ProbeDelay,
	}
	if e.defaultTimerange == "" {
		e.defaultTimerange = config.DefaultTimerange
	}
	if e.defaultConfig == "" {
		e.defaultConfig = config.DefaultBacktestConfig
	}
	if e.probeDelay == 0 {
		e.probeDelay = 2 * time.Second
	}
	return e
}

// Execute runs the command and renders its result.
func (e *Executor) Execute(ctx context.Context, cmd *Command) Result {
	switch cmd.Name {
	case NameBacktest:
		return e.executeBacktest(ctx, cmd.Args)
	case NameResults:
		return e.executeResults(ctx, cmd.Args)
	case NameRecent:
		return e.executeRecent(ctx, cmd.Args)
	case NameLogs:
		return e.executeLogs(ctx, cmd.Args)
	case NameHelp:
		return helpResult()
	default:
		// Parse only produces known names; treat anything else as help.
		return helpResult()
	}
}

// BacktestArgs holds the resolved /backtest arguments.
type BacktestArgs struct {
	Strategy  string
	Timerange string
	Config    string
}

// ParseBacktestArgs resolves positional /backtest arguments. Strategy is
// mandatory; timerange and config stay empty here and receive defaults at
// execution time.
func ParseBacktestArgs(args []string) (BacktestArgs, bool) {
	if len(args) == 0 {
		return BacktestArgs{}, false
	}
	parsed := BacktestArgs{Strategy: args[0]}
	if len(args) > 1 {
		parsed.Timerange = args[1]
	}
	if len(args) > 2 {
		parsed.Config = args[2]
	}
	return parsed, true
}

func (e *Executor) executeBacktest(ctx context.Context, args []string) Result {
	parsed, ok := ParseBacktestArgs(args)
	if !ok {
		return Result{
			OK:      false,
			ErrKind: ErrKindMissingArgument,
			Message: "**Missing strategy**\n\nUsage: `/backtest <strategy> [timerange] [config]`",
		}
	}

	timerange := parsed.Timerange
	if timerange == "" {
		timerange = e.defaultTimerange
	}
	configFile := parsed.Config
	if configFile == "" {
		configFile = e.defaultConfig
	}

	runID := uuid.New().String()
	payload, _ := json.Marshal(map[string]string{
		"action":    "backtest",
		"strategy":  parsed.Strategy,
		"timerange": timerange,
		"config":    configFile,
		"run_id":    runID,
	})

	resp, err := e.client.Do(ctx, httpx.Request{
		Method:  http.MethodPost,
		URL:     e.controllerURL + "/execute",
		Header:  map[string]string{"Content-Type": "application/json"},
		Body:    payload,
		Service: "controller",
	})
	if err != nil {
		return Result{
			OK:      false,
			ErrKind: ErrKindRequestFailed,
			Message: fmt.Sprintf("**Backtest failed to start**\n\nError: %v\n\nThis could be due to:\n- Controller service unavailable\n- Network connectivity issues\n- Invalid strategy or parameters\n\nCheck the system status and try again.", err),
		}
	}

	var ack struct {
		Status      string `json:"status"`
		WebhookUsed string `json:"webhook_used"`
	}
	_ = json.Unmarshal(resp.Body, &ack)

	// The controller falls back to a mock path when its orchestration
	// webhook is unreachable. Label that explicitly instead of passing it
	// off as a real run.
	var message string
	if ack.Status == "mock_success" {
		message = fmt.Sprintf(
			"**Backtest accepted (test mode)**\n\n- Strategy: %s\n- Timerange: %s\n- Run ID: `%s`\n\nThe controller executed the mock path because its orchestration webhook is unavailable. No real backtest was started.",
			parsed.Strategy, timerange, runID,
		)
	} else {
		message = fmt.Sprintf(
			"**Backtest started**\n\n- Strategy: %s\n- Timerange: %s\n- Run ID: `%s`\n\nThe job runs asynchronously on the controller.\n\nNext steps:\n- Check results with `/results %s`\n- List recent runs with `/recent`\n- Tail logs with `/logs`",
			parsed.Strategy, timerange, runID, runID,
		)
	}

	e.scheduleStatusProbe(runID)

	return Result{
		OK:      true,
		Message: message,
		Payload: map[string]any{"run_id": runID, "status": ack.Status},
	}
}

// scheduleStatusProbe fires a detached, best-effort status check after the
// configured delay. Its outcome is logged and never affects the returned
// result.
func (e *Executor) scheduleStatusProbe(runID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("run_id", runID).Msg("Status probe panicked")
			}
		}()

		time.Sleep(e.probeDelay)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		resp, err := e.client.Do(ctx, httpx.Request{
			Method:  http.MethodGet,
			URL:     e.controllerURL + "/api/results?run_id=" + url.QueryEscape(runID),
			Service: "controller",
		})
		if err != nil {
			logger.Debug().Err(err).Str("run_id", runID).Msg("Initial status probe failed")
			return
		}
		logger.Info().Str("run_id", runID).Int("status", resp.Status).Msg("Initial backtest status")
	}()
}

func (e *Executor) executeResults(ctx context.Context, args []string) Result {
	if len(args) == 0 {
		return Result{
			OK:      false,
			ErrKind: ErrKindMissingArgument,
			Message: "**Missing run id**\n\nUsage: `/results <run_id>`",
		}
	}
	runID := args[0]

	resp, err := e.client.Do(ctx, httpx.Request{
		Method:  http.MethodGet,
		URL:     e.controllerURL + "/api/results?run_id=" + url.QueryEscape(runID),
		Service: "controller",
	})
	if err != nil {
		if he, ok := err.(*httpx.HTTPError); ok && he.Status == http.StatusNotFound {
			return resultsNotFound(runID)
		}
		return Result{
			OK:      false,
			ErrKind: ErrKindRequestFailed,
			Message: fmt.Sprintf("**Could not fetch results**\n\nError: %v\n\nCheck the controller service and try again.", err),
		}
	}

	var data any
	if err := json.Unmarshal(resp.Body, &data); err != nil || isEmptyResult(data) {
		return resultsNotFound(runID)
	}

	pretty, _ := json.MarshalIndent(data, "", "  ")
	return Result{
		OK:      true,
		Message: fmt.Sprintf("**Results for run `%s`**\n\n```json\n%s\n```", runID, pretty),
		Payload: data,
	}
}

func resultsNotFound(runID string) Result {
	return Result{
		OK:      false,
		ErrKind: ErrKindNotFound,
		Message: fmt.Sprintf(
			"**No results found for run `%s`**\n\nPossible causes:\n- The backtest is still running\n- The run id is wrong\n- The results have not been stored yet\n\nTry again in a moment, or list known runs with `/recent`.",
			runID,
		),
	}
}

// isEmptyResult reports whether a decoded controller response carries no
// stored result.
func isEmptyResult(data any) bool {
	switch v := data.(type) {
	case nil:
		return true
	case []any:
		return len(v) == 0
	case map[string]any:
		if len(v) == 0 {
			return true
		}
		if results, ok := v["results"].([]any); ok {
			return len(results) == 0
		}
		return false
	default:
		return false
	}
}

func (e *Executor) executeRecent(ctx context.Context, args []string) Result {
	limit := DefaultRecentLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return Result{
				OK:      false,
				ErrKind: ErrKindInvalidArgument,
				Message: "**Invalid limit**\n\nUsage: `/recent [limit]` where limit is a positive number.",
			}
		}
		limit = n
	}

	resp, err := e.client.Do(ctx, httpx.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/api/recent?limit=%d", e.controllerURL, limit),
		Service: "controller",
	})
	if err != nil {
		return Result{
			OK:      false,
			ErrKind: ErrKindRequestFailed,
			Message: fmt.Sprintf("**Could not fetch recent results**\n\nError: %v", err),
		}
	}

	var body struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		// Some controller builds return a bare array.
		_ = json.Unmarshal(resp.Body, &body.Results)
	}

	if len(body.Results) == 0 {
		return Result{
			OK:      true,
			Message: "**No recent results**\n\nNothing has been executed yet. Start one with `/backtest <strategy>`.",
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Recent results** (last %d)\n\n", len(body.Results))
	for i, r := range body.Results {
		fmt.Fprintf(&b, "%d. run `%v`", i+1, r["run_id"])
		if strategy, ok := r["strategy"].(string); ok && strategy != "" {
			fmt.Fprintf(&b, " - %s", strategy)
		}
		if ts, ok := r["timestamp"].(string); ok && ts != "" {
			fmt.Fprintf(&b, " (%s)", ts)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nFetch one with `/results <run_id>`.")

	return Result{OK: true, Message: b.String(), Payload: body.Results}
}

func (e *Executor) executeLogs(ctx context.Context, args []string) Result {
	lines := DefaultLogLines
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return Result{
				OK:      false,
				ErrKind: ErrKindInvalidArgument,
				Message: "**Invalid line count**\n\nUsage: `/logs [lines]` where lines is a positive number.",
			}
		}
		lines = n
	}

	resp, err := e.client.Do(ctx, httpx.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/logs/tail?lines=%d", e.controllerURL, lines),
		Service: "controller",
	})
	if err != nil {
		return Result{
			OK:      false,
			ErrKind: ErrKindRequestFailed,
			Message: fmt.Sprintf("**Could not fetch logs**\n\nError: %v", err),
		}
	}

	var body struct {
		Logs string `json:"logs"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		body.Logs = string(resp.Body)
	}
	if strings.TrimSpace(body.Logs) == "" {
		body.Logs = "(no log output)"
	}

	return Result{
		OK:      true,
		Message: fmt.Sprintf("**Controller logs** (last %d lines)\n\n```\n%s\n```", lines, strings.TrimRight(body.Logs, "\n")),
	}
}

func helpResult() Result {
	return Result{
		OK: true,
		Message: strings.Join([]string{
			"**Available commands**",
			"",
			"- `/backtest <strategy> [timerange] [config]` - start a backtest on the controller",
			"- `/results <run_id>` - fetch stored results for a run",
			"- `/recent [limit]` - list the most recent results (default 5)",
			"- `/logs [lines]` - tail the controller log (default 20 lines)",
			"- `/help` - show this message",
			"",
			"Anything else is answered by the assistant.",
		}, "\n"),
	}
}
