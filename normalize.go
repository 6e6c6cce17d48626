package darkrecon

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Timestamp layouts providers have been seen to use. ISO-8601 with or
// without zone; a zone-less value is assumed to be UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp parses a provider-supplied time string, nil if it can't
// be understood.
func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return utcTime(t)
		}
	}
	return nil
}

// detectionScore maps detection counts to the unified risk score:
// round(100 * (malicious + 0.5*suspicious) / total), with the record
// flagged malicious at score >= 30.
func detectionScore(malicious, suspicious, total float64) (int, bool) {
	if total <= 0 {
		total = 1
	}
	score := int(math.Round(100 * (malicious + 0.5*suspicious) / total))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, score >= maliciousScoreThreshold
}

// maliciousScoreThreshold is the score at or above which a record is
// flagged malicious regardless of provider flags.
const maliciousScoreThreshold = 30

// The as* helpers traverse decoded JSON payloads without panicking on
// unexpected shapes. Missing or mistyped values come back as zero values.

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return ""
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func asStrings(v interface{}) []string {
	var out []string
	for _, e := range asSlice(v) {
		if s := asString(e); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// dig walks nested maps by key path.
func dig(m map[string]interface{}, path ...string) interface{} {
	var cur interface{} = m
	for _, key := range path {
		cm := asMap(cur)
		if cm == nil {
			return nil
		}
		cur = cm[key]
	}
	return cur
}
