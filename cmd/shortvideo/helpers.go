package main

import (
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"shortvideo/internal/api"
	"shortvideo/internal/task"
)

// relativeTime renders an API timestamp as "3 minutes ago".
func relativeTime(value string) string {
	if value == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return humanize.Time(parsed)
}

func byteSize(size int64) string {
	if size < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(size))
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stepRows returns step views in pipeline order.
func stepRows(t api.Task) [][]string {
	rows := make([][]string, 0, len(t.Steps))
	for _, step := range task.AllSteps() {
		view, ok := t.Steps[string(step)]
		if !ok {
			continue
		}
		status := view.Status
		if status == "" {
			status = "-"
		}
		rows = append(rows, []string{
			string(step),
			status,
			humanize.Comma(int64(view.Attempts)),
			view.Provider,
			relativeTime(view.FinishedAt),
			view.Error,
		})
	}
	return rows
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// settledAfter returns a check for a run started from the before snapshot.
// Failures left over from earlier runs do not count: a required step only
// ends the wait in error once it has been attempted again. A forced run is
// not done until parse has run again.
func settledAfter(before api.Task, force bool) func(api.Task) bool {
	return func(t api.Task) bool {
		failed := false
		for name, view := range t.Steps {
			switch task.StepStatus(view.Status) {
			case task.StepQueued, task.StepProcessing:
				return false
			case task.StepError:
				if task.Step(name).Required() && view.Attempts > before.Steps[name].Attempts {
					failed = true
				}
			}
		}
		if failed {
			return true
		}
		if task.Status(t.Status) != task.StatusReady {
			return false
		}
		if force {
			parse := string(task.StepParse)
			return t.Steps[parse].Attempts > before.Steps[parse].Attempts
		}
		return true
	}
}

func normalizeArg(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
