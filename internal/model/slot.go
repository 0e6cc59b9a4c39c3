package model

import "time"

// SlotRecord is one normalized appointment opportunity. The upstream schedule
// payload is loosely shaped; the normalizer flattens it into this record.
//
// Location is always non-empty ("Unknown" when the group carried no name).
// Date may be empty when the source field was malformed or absent; such
// records are still emitted so upstream schema drift stays visible to callers
// instead of being silently dropped. Time is empty when the source had none;
// the key always serializes so every record carries the same shape.
type SlotRecord struct {
	Location  string `json:"location"`
	Consulate string `json:"consulate"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// CheckResult is the successful outcome of one pipeline run.
type CheckResult struct {
	Slots      []SlotRecord `json:"slots"`
	TotalSlots int          `json:"totalSlots"`
	CheckedAt  time.Time    `json:"checkedAt"`
}
