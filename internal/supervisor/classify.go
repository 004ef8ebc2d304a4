package supervisor

import (
	"fmt"
	"time"

	"github.com/fgp-bot/fgpbot/internal/report"
)

// TimestampLayout prefixes every supervisor console message.
const TimestampLayout = "2006-01-02 15:04:05"

// OutcomeMessage is the console line printed after a run.
func OutcomeMessage(botName string, exitCode int, at time.Time) string {
	ts := at.Format(TimestampLayout)
	if report.OutcomeFor(exitCode) == report.OutcomeNormal {
		return fmt.Sprintf("[%s] %s stopped normally.", ts, botName)
	}
	return fmt.Sprintf("[%s] %s crashed with error code %d.", ts, botName, exitCode)
}

// RestartMessage announces the restart delay.
func RestartMessage(botName string, delay time.Duration) string {
	return fmt.Sprintf("Restarting %s in %s...", botName, formatDelay(delay))
}

// ClosingMessage is printed before the supervisor terminates normally.
func ClosingMessage(botName string) string {
	return fmt.Sprintf("Closing %s...", botName)
}

// PromptQuestion is the restart question, in the style of the Windows choice command.
func PromptQuestion(botName string) string {
	return fmt.Sprintf("Restart %s? [Y,N]?", botName)
}

func formatDelay(d time.Duration) string {
	if d%time.Second == 0 {
		n := int(d / time.Second)
		if n == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", n)
	}
	return d.String()
}
