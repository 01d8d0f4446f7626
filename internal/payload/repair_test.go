package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsed(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestRepairUnquotedKeysAndTrailingComma(t *testing.T) {
	out, err := Repair(`{boxId:BOX1, temp:27.5,}`)
	require.NoError(t, err)
	assert.Equal(t, parsed(t, `{"boxId":"BOX1","temp":27.5}`), parsed(t, out))

	tel, err := ParseTelemetry(`{boxId:BOX1, temp:27.5,}`)
	require.NoError(t, err)
	assert.Equal(t, "BOX1", tel.BoxID)
	require.NotNil(t, tel.Temp)
	assert.Equal(t, 27.5, *tel.Temp)
}

func TestRepairIsIdentityOnValidJSON(t *testing.T) {
	inputs := []string{
		`{"boxId":"BOX1","temp":27.5}`,
		`{"a":{"b":[1,2,3]},"c":null,"d":true}`,
		`  {"s":"has: colon, and comma}"}  `,
	}
	for _, in := range inputs {
		out, err := Repair(in)
		require.NoError(t, err)
		assert.Equal(t, parsed(t, in), parsed(t, out))
	}
}

func TestRepairKeepsLiterals(t *testing.T) {
	out, err := Repair(`{boxId:BOX2, temp:-3.5e1, tamper:TRUE, weight:null}`)
	require.NoError(t, err)
	assert.Equal(t, parsed(t, `{"boxId":"BOX2","temp":-35,"tamper":true,"weight":null}`), parsed(t, out))
}

func TestRepairNestedObject(t *testing.T) {
	out, err := Repair(`{boxId:BOX3, gps:{lat:18.52, lon:73.85}}`)
	require.NoError(t, err)
	assert.Equal(t, parsed(t, `{"boxId":"BOX3","gps":{"lat":18.52,"lon":73.85}}`), parsed(t, out))
}

func TestRepairGivesUp(t *testing.T) {
	_, err := Repair(`not json at all {{{`)
	assert.ErrorIs(t, err, ErrUnparseable)

	_, err = Decode(`[1,2,3]`)
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestNormalizeTelemetryCoercesFields(t *testing.T) {
	tel, err := ParseTelemetry(`{"boxId":"B","temp":"31.2","humidity":55,"weight":1.5,"tamper":1,"gps":{"lat":1.5},"timestamp":1700000000000,"extra":"x"}`)
	require.NoError(t, err)

	require.NotNil(t, tel.Temp)
	assert.Equal(t, 31.2, *tel.Temp)
	require.NotNil(t, tel.Humidity)
	assert.Equal(t, 55.0, *tel.Humidity)
	require.NotNil(t, tel.Tamper)
	assert.True(t, *tel.Tamper)
	require.NotNil(t, tel.GPS)
	assert.False(t, tel.GPS.Complete())
	require.NotNil(t, tel.Timestamp)
	assert.Equal(t, int64(1700000000000), tel.Timestamp.UnixMilli())
	assert.Nil(t, tel.VOC)
	assert.Equal(t, "x", tel.Raw["extra"])
	assert.JSONEq(t, `{"lat":1.5}`, string(tel.LocationJSON()))
}

func TestNormalizeTelemetryAbsentFields(t *testing.T) {
	tel, err := ParseTelemetry(`{"boxId":"B"}`)
	require.NoError(t, err)
	assert.Nil(t, tel.Temp)
	assert.Nil(t, tel.Humidity)
	assert.Nil(t, tel.GPS)
	assert.Nil(t, tel.Tamper)
	assert.Nil(t, tel.LocationJSON())
}

func TestParseAck(t *testing.T) {
	ack, err := ParseAck(`{cmdId:abc-1, status:OK, applied:{peltier:on, targetTemp:4}}`)
	require.NoError(t, err)
	assert.Equal(t, "abc-1", ack.CmdID)
	assert.True(t, ack.OK())
	require.NotNil(t, ack.Applied)
	require.NotNil(t, ack.Applied.Peltier)
	assert.Equal(t, "ON", *ack.Applied.Peltier)
	assert.Nil(t, ack.Applied.Fan)
	require.NotNil(t, ack.Applied.TargetTemp)
	assert.Equal(t, 4.0, *ack.Applied.TargetTemp)

	ack, err = ParseAck(`{"cmdId":"x","status":"FAILED"}`)
	require.NoError(t, err)
	assert.False(t, ack.OK())
	assert.Nil(t, ack.Applied)

	ack, err = ParseAck(`{"cmdId":"y"}`)
	require.NoError(t, err)
	assert.Equal(t, "OK", ack.Status)
}
