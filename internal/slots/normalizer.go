// Package slots flattens the portal's schedule payload into uniform records.
// The upstream shape is not contractually fixed: location groups may carry
// their entries under days, slots or availableDates, or as a bare date, and
// naming fields drift between variants. The normalizer is total over
// arbitrary JSON; malformed sub-structures are skipped, never fatal.
package slots

import (
	"encoding/json"

	"github.com/otarkhan/slotwatch/internal/logging"
	"github.com/otarkhan/slotwatch/internal/model"
)

// maxDepth caps recursion through nested wrapper objects. The input is
// tree-shaped JSON so there is no cycle risk, only pathological nesting.
const maxDepth = 8

type Normalizer struct {
	logger logging.Logger
}

func New(logger logging.Logger) *Normalizer {
	return &Normalizer{
		logger: logging.OrNop(logger).With(logging.Field{Key: "component", Value: "slots"}),
	}
}

// Normalize walks raw and returns every slot record it could extract.
// It never fails: undecodable input yields an empty slice, and a panic while
// walking returns whatever was accumulated before it.
func (n *Normalizer) Normalize(raw json.RawMessage) (records []model.SlotRecord) {
	records = []model.SlotRecord{}
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("normalizer recovered mid-walk",
				logging.Field{Key: "panic", Value: r},
				logging.Field{Key: "accumulated", Value: len(records)})
		}
	}()

	if len(raw) == 0 {
		return records
	}
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		n.logger.Warn("schedule payload is not valid JSON",
			logging.Field{Key: "error", Value: err.Error()})
		return records
	}

	n.walk(root, 0, &records)
	return records
}

func (n *Normalizer) walk(v any, depth int, out *[]model.SlotRecord) {
	if depth > maxDepth {
		n.logger.Warn("schedule payload nesting exceeds depth cap",
			logging.Field{Key: "depth", Value: depth})
		return
	}

	switch val := v.(type) {
	case []any:
		for _, elem := range val {
			group, ok := elem.(map[string]any)
			if !ok {
				n.logger.Debug("skipping non-object location group")
				continue
			}
			n.group(group, out)
		}
	case map[string]any:
		// Wrapper objects put the group array under locations or results.
		if inner, ok := val["locations"]; ok {
			n.walk(inner, depth+1, out)
			return
		}
		if inner, ok := val["results"]; ok {
			n.walk(inner, depth+1, out)
		}
	}
}

// group emits one record per leaf entry of a location group, carrying the
// group's names forward. Sub-structures are tried in priority order and only
// the first present one is used.
func (n *Normalizer) group(g map[string]any, out *[]model.SlotRecord) {
	location := firstString(g, "locationName", "location", "name")
	if location == "" {
		location = "Unknown"
	}
	consulate := firstString(g, "consulateName", "consulate")
	if consulate == "" {
		consulate = location
	}

	emit := func(date, timeOfDay string) {
		*out = append(*out, model.SlotRecord{
			Location:  location,
			Consulate: consulate,
			Date:      date,
			Time:      timeOfDay,
			Available: true,
		})
	}

	entries, ok := entryList(g, "days", "slots", "availableDates")
	if !ok {
		// No recognized sub-structure; a bare date on the group itself is
		// the last resort. A group with neither contributes nothing.
		if _, present := g["date"]; present {
			emit(firstString(g, "date", "appointmentDate"), firstString(g, "time", "appointmentTime"))
		}
		return
	}

	for _, entry := range entries {
		switch e := entry.(type) {
		case map[string]any:
			// Missing or null dates are emitted as empty rather than
			// dropped, so upstream schema drift stays visible to callers.
			emit(firstString(e, "date", "appointmentDate"), firstString(e, "time", "appointmentTime"))
		case string:
			// Some variants send the day as a raw scalar instead of an
			// object.
			emit(e, "")
		default:
			n.logger.Debug("skipping malformed slot entry")
		}
	}
}

func entryList(g map[string]any, keys ...string) ([]any, bool) {
	for _, key := range keys {
		if list, ok := g[key].([]any); ok {
			return list, true
		}
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
