package model

import (
	"strconv"
	"strings"
	"time"
)

// Timestamp columns present on every table once the pipeline touches a row.
const (
	CreatedAtField = "createdAt"
	UpdatedAtField = "updatedAt"
)

// TimestampLayout is ISO-8601 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// FileTimestamp renders t like FormatTimestamp but with ':' and '.'
// replaced so the result is safe inside a file name.
func FileTimestamp(t time.Time) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(FormatTimestamp(t))
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
