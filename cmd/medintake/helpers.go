package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

func formatBytes(size int64) string {
	if size <= 0 {
		return ""
	}
	return humanize.IBytes(uint64(size))
}

func formatConfidence(confidence float64) string {
	if confidence <= 0 {
		return ""
	}
	return fmt.Sprintf("%.2f", confidence)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
