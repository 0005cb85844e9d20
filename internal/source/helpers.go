package source

import (
	"fmt"
	"strings"
	"time"
)

// pickStr returns the first non-empty string value among keys.
func pickStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				s2 := strings.TrimSpace(s)
				if s2 != "" {
					return s2
				}
			}
		}
	}
	return ""
}

// parseTimeFlexible accepts RFC3339, RFC1123 variants, epoch seconds and a few
// compact layouts used by news search APIs.
func parseTimeFlexible(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	// naive epoch seconds
	if len(s) == 10 {
		allDigits := true
		var sec int64
		for i := 0; i < len(s); i++ {
			if s[i] < '0' || s[i] > '9' {
				allDigits = false
				break
			}
			sec = sec*10 + int64(s[i]-'0')
		}
		if allDigits {
			return time.Unix(sec, 0).UTC(), nil
		}
	}
	for _, layout := range []string{"20060102T150405Z", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time: %s", s)
}
