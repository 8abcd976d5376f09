package payments

import (
	"strings"
	"time"
)

// Moderator date filters accept a date or a full timestamp.
var dateFilterLayouts = []string{
	time.RFC3339,
	"2006-01-02",
}

func parseDateFilter(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	var lastErr error
	for _, layout := range dateFilterLayouts {
		t, err := time.Parse(layout, strings.TrimSpace(*raw))
		if err == nil {
			return &t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
