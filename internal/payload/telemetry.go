package payload

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// GPS is a coordinate pair. Either axis may be missing in a partial fix.
type GPS struct {
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`
}

// Complete reports whether both axes are present
func (g *GPS) Complete() bool {
	return g != nil && g.Lat != nil && g.Lon != nil
}

// Telemetry is the normalized form of one box telemetry message. Absent
// fields stay nil; Raw keeps every field, including device-specific ones.
type Telemetry struct {
	BoxID     string
	BatchCode string
	Temp      *float64
	Humidity  *float64
	VOC       *float64
	Weight    *float64
	GPS       *GPS
	Tamper    *bool
	Timestamp *time.Time
	Raw       map[string]any
}

// JSON returns the normalized payload for persistence.
func (t *Telemetry) JSON() json.RawMessage {
	data, err := json.Marshal(t.Raw)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// LocationJSON returns the gps object as stored on the device.
func (t *Telemetry) LocationJSON() json.RawMessage {
	if v, ok := t.Raw["gps"]; ok && v != nil {
		if data, err := json.Marshal(v); err == nil {
			return data
		}
	}
	return nil
}

// NormalizeTelemetry maps a decoded telemetry object onto Telemetry.
func NormalizeTelemetry(obj map[string]any) Telemetry {
	t := Telemetry{Raw: obj}
	t.BoxID = asString(obj["boxId"])
	t.BatchCode = asString(obj["batchCode"])
	t.Temp = asFloat(obj["temp"])
	t.Humidity = asFloat(obj["humidity"])
	t.VOC = asFloat(obj["voc"])
	t.Weight = asFloat(obj["weight"])
	t.Tamper = asBool(obj["tamper"])
	t.Timestamp = asTime(obj["timestamp"])

	if raw, ok := obj["gps"]; ok && raw != nil {
		g := &GPS{}
		if m, ok := raw.(map[string]any); ok {
			g.Lat = asFloat(m["lat"])
			g.Lon = asFloat(m["lon"])
		}
		t.GPS = g
	}
	return t
}

// ParseTelemetry decodes (repairing if needed) and normalizes a telemetry payload.
func ParseTelemetry(text string) (Telemetry, error) {
	obj, err := Decode(text)
	if err != nil {
		return Telemetry{}, err
	}
	return NormalizeTelemetry(obj), nil
}

// GPSFromSnapshot extracts the gps fix of a stored snapshot payload.
func GPSFromSnapshot(data json.RawMessage) *GPS {
	obj, err := Decode(string(data))
	if err != nil {
		return nil
	}
	return NormalizeTelemetry(obj).GPS
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

func asFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case bool:
		if x {
			f = 1
		}
	default:
		return nil
	}
	return &f
}

func asBool(v any) *bool {
	var b bool
	switch x := v.(type) {
	case bool:
		b = x
	case string:
		b = strings.EqualFold(strings.TrimSpace(x), "true")
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil
		}
		b = f != 0
	case float64:
		b = x != 0
	default:
		return nil
	}
	return &b
}

// asTime accepts epoch milliseconds or RFC 3339 text.
func asTime(v any) *time.Time {
	switch x := v.(type) {
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return nil
		}
		t := time.UnixMilli(ms).UTC()
		return &t
	case string:
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(x))
		if err != nil {
			return nil
		}
		return &t
	}
	return nil
}
