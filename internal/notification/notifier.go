package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jwillz7667/CropLens/internal/insights"
)

type Alert struct {
	Subject  string
	Body     string
	Severity insights.Severity
}

type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InsightAlert summarizes derived insights for one field. The alert carries
// the highest severity present.
func InsightAlert(fieldName string, derived []insights.Insight) Alert {
	var b strings.Builder
	severity := insights.SeverityLow
	for i, in := range derived {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s\n%s", strings.ToUpper(string(in.Severity)), in.Message, in.Recommendation)
		if rank(in.Severity) > rank(severity) {
			severity = in.Severity
		}
	}
	return Alert{
		Subject:  "CropLens insight for " + fieldName,
		Body:     b.String(),
		Severity: severity,
	}
}

func rank(s insights.Severity) int {
	switch s {
	case insights.SeverityHigh:
		return 2
	case insights.SeverityMedium:
		return 1
	default:
		return 0
	}
}
