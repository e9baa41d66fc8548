package logging

import (
	"log/slog"
	"strings"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldDecisionType,
	"patient_name",
	FieldRecordNumber,
	"document_type",
	FieldMatchTier,
	FieldConfidence,
	"match_status",
	"status",
	"error_message",
	FieldErrorCode,
	FieldErrorHint,
	FieldImpact,
	"files",
	"completed",
	"review",
	"failed",
	"skipped",
	"duplicates",
	"candidates",
	"strategy",
	"decision_result",
	"decision_reason",
	"review_category",
	"review_priority",
	"original_name",
	"size_bytes",
	"session_duration",
	"reason",
}

// selectInfoFields returns formatted info-level fields and a count of hidden entries.
// limit=0 means no limit. includeDebug controls whether debug-only keys are allowed.
func selectInfoFields(attrs []kv, limit int, includeDebug bool) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	if limit < 0 {
		limit = 0
	}
	used := make([]bool, len(attrs))
	formatted := make([]string, len(attrs))
	formattedSet := make([]bool, len(attrs))
	ensureValue := func(idx int) string {
		if !formattedSet[idx] {
			formatted[idx] = formatValueForKeyWithAttrs(attrs[idx].key, attrs[idx].value, attrs)
			formattedSet[idx] = true
		}
		return formatted[idx]
	}
	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	for _, key := range infoHighlightKeys {
		if limit > 0 && len(result) >= limit {
			break
		}
		for idx, attr := range attrs {
			if used[idx] || attr.key != key {
				continue
			}
			used[idx] = true
			if skipInfoKey(attr.key) {
				break
			}
			if !includeDebug && isDebugOnlyKey(attr.key) {
				hidden++
				break
			}
			val := ensureValue(idx)
			if !includeDebug && shouldHideInfoValue(attr.key, val) {
				hidden++
				break
			}
			result = append(result, infoField{label: displayLabel(attr.key), value: val})
			break
		}
	}

	for idx, attr := range attrs {
		if used[idx] {
			continue
		}
		used[idx] = true
		if skipInfoKey(attr.key) {
			continue
		}
		if !includeDebug && isDebugOnlyKey(attr.key) {
			hidden++
			continue
		}
		val := ensureValue(idx)
		if !includeDebug && shouldHideInfoValue(attr.key, val) {
			hidden++
			continue
		}
		if limit <= 0 || len(result) < limit {
			result = append(result, infoField{label: displayLabel(attr.key), value: val})
		} else if limit > 0 {
			hidden++
		}
	}

	return result, hidden
}

// formatValueForKeyWithAttrs applies smart formatting based on the key name.
func formatValueForKeyWithAttrs(key string, v slog.Value, attrs []kv) string {
	v = v.Resolve()

	if isByteSizeKey(key) && (v.Kind() == slog.KindInt64 || v.Kind() == slog.KindUint64) {
		var bytes int64
		if v.Kind() == slog.KindInt64 {
			bytes = v.Int64()
		} else {
			bytes = int64(v.Uint64())
		}
		return formatBytes(bytes)
	}

	if isDurationKey(key) && v.Kind() == slog.KindDuration {
		return formatDurationHuman(v.Duration())
	}

	if isPercentKey(key) && v.Kind() == slog.KindFloat64 {
		return formatPercent(v.Float64())
	}

	if isConfidenceKey(key) && v.Kind() == slog.KindFloat64 {
		return formatConfidence(v.Float64())
	}

	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}

	value := formatValue(v)
	if key == "error" || key == "error_message" {
		value = truncateErrorValue(value)
	}
	_ = attrs
	return value
}

// isByteSizeKey returns true if the key represents a byte size.
func isByteSizeKey(key string) bool {
	return strings.HasSuffix(key, "_bytes") ||
		strings.HasSuffix(key, "_size") ||
		key == "size"
}

// isDurationKey returns true if the key represents a duration.
func isDurationKey(key string) bool {
	return strings.HasSuffix(key, "_duration") ||
		strings.HasSuffix(key, "_elapsed") ||
		key == "elapsed" ||
		key == "duration" ||
		key == "backoff"
}

// isPercentKey returns true if the key represents a percentage.
func isPercentKey(key string) bool {
	return strings.HasSuffix(key, "_percent") ||
		key == "progress"
}

// isConfidenceKey returns true if the key carries a 0..1 match score.
func isConfidenceKey(key string) bool {
	return key == FieldConfidence ||
		key == "similarity" ||
		strings.HasSuffix(key, "_confidence") ||
		strings.HasSuffix(key, "_score")
}

func truncateErrorValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	const maxLen = 200
	if len(value) > maxLen {
		value = value[:maxLen] + "…"
	}
	return value
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldComponent, FieldSessionID, FieldFileID, FieldOperation:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	if key == "" {
		return true
	}
	switch key {
	case FieldCorrelationID,
		"extension",
		"schema_version",
		"attempt",
		"workers",
		"claimed",
		"normalized_name",
		"seq_similarity",
		"set_similarity",
		"initials_similarity":
		return true
	}
	if strings.Contains(key, "correlation") {
		return true
	}
	if strings.HasSuffix(key, "_id") && key != FieldFileID {
		return true
	}
	if strings.Contains(key, "hash") {
		return true
	}
	if strings.Contains(key, "_path") || strings.Contains(key, "_dir") {
		return true
	}
	return false
}

func shouldHideInfoValue(key, value string) bool {
	switch key {
	case "error_message", "error", "reason":
		return false
	}
	if strings.TrimSpace(value) == "" {
		return true
	}
	return len(value) > 120
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldDecisionType:
		return "Decision"
	case FieldErrorCode:
		return "Error Code"
	case FieldErrorHint:
		return "Hint"
	case FieldErrorKind:
		return "Error Kind"
	case FieldImpact:
		return "Impact"
	case FieldFileID:
		return "File"
	case FieldRecordNumber:
		return "Record Number"
	case FieldMatchTier:
		return "Tier"
	case FieldConfidence:
		return "Confidence"
	case "patient_name":
		return "Patient"
	case "document_type":
		return "Document Type"
	case "original_name":
		return "File Name"
	case "match_status":
		return "Match Status"
	case "size_bytes":
		return "Size"
	case "session_duration":
		return "Duration"
	case "files":
		return "Files"
	case "completed":
		return "Completed"
	case "review":
		return "Review"
	case "failed":
		return "Failed"
	case "skipped":
		return "Skipped"
	case "duplicates":
		return "Duplicates"
	case "candidates":
		return "Candidates"
	case "strategy":
		return "Strategy"
	case "provisional":
		return "Provisional"
	case "indexed":
		return "Indexed"
	case "decision_result":
		return "Decision"
	case "decision_reason":
		return "Reason"
	case "review_category":
		return "Category"
	case "review_priority":
		return "Priority"
	case "secondary_number":
		return "Secondary Number"
	case "reason":
		return "Reason"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	if key == "" {
		return ""
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-'
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

func infoSummaryKey(component, fileID string, attrs []kv) string {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		if session := attrValue(attrs, FieldSessionID); session != "" {
			fileID = "session:" + session
		} else if component != "" {
			fileID = component
		}
	}
	return fileID
}

func attrValue(attrs []kv, key string) string {
	for _, kv := range attrs {
		if kv.key == key {
			return attrString(kv.value)
		}
	}
	return ""
}
