package redis

import (
	"encoding/json"
	"strconv"

	"github.com/justapithecus/throttlekeep/record"
)

// hashFields returns the HSET field/value pairs for r, in the same field
// order every Lua script and Go caller agrees on.
func hashFields(r *record.Record) ([]any, error) {
	details, err := marshalAny(r.Details)
	if err != nil {
		return nil, err
	}
	strategyData, err := marshalAny(r.StrategyData)
	if err != nil {
		return nil, err
	}
	cfg, err := json.Marshal(r.Config)
	if err != nil {
		return nil, err
	}

	scheduled := ""
	if r.ScheduledSendAt != nil {
		scheduled = strconv.FormatInt(*r.ScheduledSendAt, 10)
	}

	return []any{
		"key", r.Key,
		"category", r.Category,
		"id", r.ID,
		"details", details,
		"detailsHash", r.DetailsHash,
		"count", r.Count,
		"lastEventTime", r.LastEventTime,
		"expiresAt", r.ExpiresAt,
		"deferred", strconv.FormatBool(r.Deferred),
		"scheduledSendAt", scheduled,
		"strategyType", r.StrategyType,
		"strategyData", strategyData,
		"config", string(cfg),
	}, nil
}

func marshalAny(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// recordFromHash reconstructs a record.Record from the flat field map a
// HGETALL (or a Lua script's toTable) returns. Returns nil if m is empty.
func recordFromHash(m map[string]string) (*record.Record, error) {
	if len(m) == 0 {
		return nil, nil
	}

	r := &record.Record{
		Key:          m["key"],
		Category:     m["category"],
		ID:           m["id"],
		DetailsHash:  m["detailsHash"],
		StrategyType: m["strategyType"],
	}

	if m["details"] != "" {
		if err := json.Unmarshal([]byte(m["details"]), &r.Details); err != nil {
			return nil, err
		}
	}
	if m["strategyData"] != "" {
		if err := json.Unmarshal([]byte(m["strategyData"]), &r.StrategyData); err != nil {
			return nil, err
		}
	}
	if m["config"] != "" {
		if err := json.Unmarshal([]byte(m["config"]), &r.Config); err != nil {
			return nil, err
		}
	}

	r.Count, _ = strconv.ParseInt(m["count"], 10, 64)
	r.LastEventTime, _ = strconv.ParseInt(m["lastEventTime"], 10, 64)
	r.ExpiresAt, _ = strconv.ParseInt(m["expiresAt"], 10, 64)
	r.Deferred = m["deferred"] == "true"

	if s := m["scheduledSendAt"]; s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			r.ScheduledSendAt = &v
		}
	}

	return r, nil
}

// parseFlatRecords splits the flat [key, f, v, f, v, ..., sentinel, key, ...]
// list returned by pop_due_deferred.lua into individual records.
func parseFlatRecords(flat []any) ([]*record.Record, error) {
	const sentinel = "\x00ENDRECORD\x00"

	var out []*record.Record
	i := 0
	for i < len(flat) {
		_ = toString(flat[i]) // the composite key; carried in the hash fields too
		i++
		fields := map[string]string{}
		for i < len(flat) {
			field := toString(flat[i])
			i++
			if field == sentinel {
				break
			}
			value := toString(flat[i])
			i++
			fields[field] = value
		}
		r, err := recordFromHash(fields)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return ""
	}
}
