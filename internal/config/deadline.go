package config

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var deadlineParser = newDeadlineParser()

func newDeadlineParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDeadline turns a deadline such as "in 20 minutes", "at 5pm" or a Go
// duration ("90s") into a time budget measured from now.
func ParseDeadline(expr string, now time.Time) (time.Duration, error) {
	if d, err := time.ParseDuration(expr); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("deadline %q must be positive", expr)
		}
		return d, nil
	}

	r, err := deadlineParser.Parse(expr, now)
	if err != nil {
		return 0, fmt.Errorf("failed to parse deadline %q: %w", expr, err)
	}
	if r == nil {
		return 0, fmt.Errorf("unrecognized deadline %q", expr)
	}

	d := r.Time.Sub(now)
	if d <= 0 {
		return 0, fmt.Errorf("deadline %q is in the past", expr)
	}
	return d, nil
}
