package report

import (
	"fmt"
	"time"

	"github.com/fgp-bot/fgpbot/pkg/logging"
)

// Outcome is the display classification of a finished bot run.
type Outcome string

const (
	OutcomeNormal  Outcome = "stopped"
	OutcomeCrashed Outcome = "crashed"
)

// OutcomeFor maps an exit status to its outcome. Zero is the only normal stop.
func OutcomeFor(exitCode int) Outcome {
	if exitCode == 0 {
		return OutcomeNormal
	}
	return OutcomeCrashed
}

// Result is the record of one bot run. It is built once when the child
// exits and never changed afterwards.
type Result struct {
	SessionID string `json:"session_id"`
	Run       int    `json:"run"`
	PID       int    `json:"pid"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration_ns"`

	ExitCode int     `json:"exit_code"`
	Outcome  Outcome `json:"outcome"`

	// StartError is set when the child could not be launched at all.
	StartError string `json:"start_error,omitempty"`
}

// NewResult creates a result and derives its outcome from exitCode.
func NewResult(sessionID string, run, pid, exitCode int, startTime, endTime time.Time) *Result {
	return &Result{
		SessionID: sessionID,
		Run:       run,
		PID:       pid,
		ExitCode:  exitCode,
		Outcome:   OutcomeFor(exitCode),
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(startTime),
	}
}

// Summary is the one-line form ops grep for.
func (r *Result) Summary() string {
	s := fmt.Sprintf("RUN %d | outcome=%s | exit=%d | pid=%d | runtime=%.0fs",
		r.Run, r.Outcome, r.ExitCode, r.PID, r.Duration.Seconds())
	if r.StartError != "" {
		s += " | start_error=" + r.StartError
	}
	return s
}

// LogSummary writes Summary to logger, at WARN for crashes.
func (r *Result) LogSummary(logger *logging.Logger) {
	fields := map[string]interface{}{"session": r.SessionID}
	if r.Outcome == OutcomeCrashed {
		logger.Warn(r.Summary(), fields)
		return
	}
	logger.Info(r.Summary(), fields)
}
