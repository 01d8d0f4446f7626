package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrUnparseable is returned when a payload is not valid JSON even after repair.
var ErrUnparseable = errors.New("payload: unparseable after repair")

var (
	// {boxId: -> {"boxId":
	bareKey = regexp.MustCompile(`([{,])(\s*)([A-Za-z0-9_\-]+)(\s*):`)
	// an unquoted value after a colon, up to the next ',' or '}'
	bareValue    = regexp.MustCompile(`:(\s*)([^{"\[,\]}]+)([,}])`)
	numberLit    = regexp.MustCompile(`^-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?$`)
	boolNullLit  = regexp.MustCompile(`(?i)^(?:true|false|null)$`)
	trailingComa = regexp.MustCompile(`,(\s*)([}\]])`)
)

// Repair returns text unchanged when it already parses as JSON. Otherwise it
// quotes bare object keys, quotes bare values that are not number, boolean or
// null literals, drops trailing commas, and returns the result if that parses.
func Repair(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	step := bareKey.ReplaceAllString(trimmed, `$1$2"$3"$4:`)
	step = bareValue.ReplaceAllStringFunc(step, quoteBareValue)
	step = trailingComa.ReplaceAllString(step, "$2")

	if !json.Valid([]byte(step)) {
		return "", ErrUnparseable
	}
	return step, nil
}

func quoteBareValue(match string) string {
	sub := bareValue.FindStringSubmatch(match)
	value := strings.TrimSpace(sub[2])
	term := sub[3]
	if value == "" {
		return match
	}
	if numberLit.MatchString(value) {
		return ":" + value + term
	}
	if boolNullLit.MatchString(value) {
		return ":" + strings.ToLower(value) + term
	}
	quoted, _ := json.Marshal(value)
	return ":" + string(quoted) + term
}

// Decode repairs text if needed and decodes it into a generic object. Numbers
// are kept as json.Number.
func Decode(text string) (map[string]any, error) {
	fixed, err := Repair(text)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(fixed)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, ErrUnparseable
	}
	if out == nil {
		return nil, ErrUnparseable
	}
	return out, nil
}
