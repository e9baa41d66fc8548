package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func attrString(value slog.Value) string {
	value = value.Resolve()
	if value.Kind() == slog.KindString {
		return value.String()
	}
	return formatValue(value)
}

func formatValue(value slog.Value) string {
	value = value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		s := value.String()
		if needsQuotes(s) {
			return strconv.Quote(s)
		}
		return s
	case slog.KindInt64:
		return strconv.FormatInt(value.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(value.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(value.Float64(), 'g', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(value.Bool())
	case slog.KindDuration:
		return formatDurationHuman(value.Duration())
	case slog.KindTime:
		return value.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(value.Any())
	}
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r == ' ' || r == '"' || r == '=' || r < 0x20 {
			return true
		}
	}
	return false
}

func asInt64(value slog.Value) (int64, bool) {
	value = value.Resolve()
	switch value.Kind() {
	case slog.KindInt64:
		return value.Int64(), true
	case slog.KindUint64:
		u := value.Uint64()
		if u > uint64(1<<63-1) {
			return 0, false
		}
		return int64(u), true
	case slog.KindFloat64:
		return int64(value.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(value.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func asFloat64(value slog.Value) (float64, bool) {
	value = value.Resolve()
	switch value.Kind() {
	case slog.KindFloat64:
		return value.Float64(), true
	case slog.KindInt64:
		return float64(value.Int64()), true
	case slog.KindUint64:
		return float64(value.Uint64()), true
	case slog.KindString:
		f, err := strconv.ParseFloat(value.String(), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func asDuration(value slog.Value) (time.Duration, bool) {
	value = value.Resolve()
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration(), true
	case slog.KindInt64:
		return time.Duration(value.Int64()), true
	case slog.KindString:
		d, err := time.ParseDuration(value.String())
		if err != nil {
			return 0, false
		}
		return d, true
	default:
		return 0, false
	}
}

func formatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

func formatDurationHuman(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	case d < time.Hour:
		minutes := int(d / time.Minute)
		seconds := int(d/time.Second) % 60
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		hours := int(d / time.Hour)
		minutes := int(d/time.Minute) % 60
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
}

func formatPercent(v float64) string {
	if v <= 1.0 && v >= 0 {
		v *= 100
	}
	return strings.TrimSuffix(strconv.FormatFloat(v, 'f', 1, 64), ".0") + "%"
}

func formatConfidence(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
