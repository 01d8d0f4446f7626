package payload

import "strings"

// Applied carries the settings a box reports after executing a command
type Applied struct {
	Peltier    *string
	Fan        *string
	TargetTemp *float64
}

// Ack is the normalized form of a command acknowledgment
type Ack struct {
	CmdID   string
	Status  string
	Applied *Applied
	Raw     map[string]any
}

// OK reports whether the box accepted the command
func (a Ack) OK() bool {
	return strings.EqualFold(a.Status, "OK")
}

// ParseAck decodes (repairing if needed) an acknowledgment payload. A missing
// status counts as "OK".
func ParseAck(text string) (Ack, error) {
	obj, err := Decode(text)
	if err != nil {
		return Ack{}, err
	}
	ack := Ack{
		CmdID:  asString(obj["cmdId"]),
		Status: asString(obj["status"]),
		Raw:    obj,
	}
	if ack.Status == "" {
		ack.Status = "OK"
	}
	if m, ok := obj["applied"].(map[string]any); ok {
		applied := &Applied{TargetTemp: asFloat(m["targetTemp"])}
		if _, ok := m["peltier"]; ok {
			s := strings.ToUpper(asString(m["peltier"]))
			applied.Peltier = &s
		}
		if _, ok := m["fan"]; ok {
			s := strings.ToUpper(asString(m["fan"]))
			applied.Fan = &s
		}
		ack.Applied = applied
	}
	return ack, nil
}
