package logging

import (
	"log/slog"
	"strings"
)

type infoField struct {
	label string
	value string
}

// Keys listed here are printed first, in this order.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	"status",
	FieldProgressStatus,
	FieldProgressElapsed,
	FieldProgressSpeed,
	FieldProgressPercent,
	"frame",
	"fps",
	"bitrate",
	"total_size",
	"exit_code",
	"pid",
	"args",
	"path",
	"binary",
	"url",
	"downloaded_bytes",
	"total_bytes",
	"percent",
	"elapsed",
	"error",
	FieldErrorHint,
	FieldImpact,
}

// selectInfoFields returns formatted info-level fields and a count of hidden entries.
// limit=0 means no limit.
func selectInfoFields(attrs []kv, limit int) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	if limit < 0 {
		limit = 0
	}
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, len(attrs))
	hidden := 0
	add := func(idx int) {
		used[idx] = true
		attr := attrs[idx]
		if skipInfoKey(attr.key) {
			return
		}
		val := formatValueForKey(attr.key, attr.value)
		if shouldHideInfoValue(attr.key, val) || (limit > 0 && len(result) >= limit) {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: val})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				add(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			add(idx)
		}
	}
	return result, hidden
}

// formatValueForKey applies smart formatting based on the key name.
func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()

	if isByteSizeKey(key) && (v.Kind() == slog.KindInt64 || v.Kind() == slog.KindUint64) {
		if v.Kind() == slog.KindInt64 {
			return formatBytes(v.Int64())
		}
		return formatBytes(int64(v.Uint64()))
	}
	if isDurationKey(key) && v.Kind() == slog.KindDuration {
		return formatDurationHuman(v.Duration())
	}
	if isPercentKey(key) && v.Kind() == slog.KindFloat64 {
		return formatPercent(v.Float64())
	}
	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}

	value := formatValue(v)
	if key == "error" {
		value = truncateErrorValue(value)
	}
	return value
}

func isByteSizeKey(key string) bool {
	return strings.HasSuffix(key, "_bytes") ||
		strings.HasSuffix(key, "_size") ||
		key == "size"
}

func isDurationKey(key string) bool {
	return strings.HasSuffix(key, "_duration") ||
		strings.HasSuffix(key, "_elapsed") ||
		key == "elapsed" ||
		key == "duration" ||
		key == "grace"
}

func isPercentKey(key string) bool {
	return strings.HasSuffix(key, "_percent") || key == "percent"
}

func truncateErrorValue(value string) string {
	value = strings.TrimSpace(value)
	const maxLen = 200
	if len(value) > maxLen {
		value = value[:maxLen] + "…"
	}
	return value
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldComponent, FieldRunID:
		return true
	default:
		return false
	}
}

func shouldHideInfoValue(key, value string) bool {
	switch key {
	case "error", "args", FieldErrorHint:
		return false
	}
	return len(value) > 120
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case FieldProgressStatus:
		return "Progress"
	case FieldProgressElapsed:
		return "Time"
	case FieldProgressSpeed:
		return "Speed"
	case FieldProgressPercent:
		return "Complete"
	case "fps":
		return "FPS"
	case "pid":
		return "PID"
	case "url":
		return "URL"
	case "total_size":
		return "Output Size"
	case "downloaded_bytes":
		return "Downloaded"
	case "total_bytes":
		return "Total"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	if key == "" {
		return ""
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	if len(parts) == 0 {
		return strings.ToUpper(key[:1]) + strings.ToLower(key[1:])
	}
	for i, part := range parts {
		parts[i] = capitalizeASCII(part)
	}
	return strings.Join(parts, " ")
}

func capitalizeASCII(value string) string {
	switch len(value) {
	case 0:
		return ""
	case 1:
		return strings.ToUpper(value)
	default:
		lower := strings.ToLower(value)
		return strings.ToUpper(lower[:1]) + lower[1:]
	}
}
