package agents

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// ComputeTraceID derives a stable per-day conversation id from the first
// user message, so every round of one conversation shares a trace
func ComputeTraceID(day time.Time, firstUserMessage string) string {
	sum := md5.Sum([]byte(day.Format(time.DateOnly) + firstUserMessage))
	return "chash_" + hex.EncodeToString(sum[:])
}
