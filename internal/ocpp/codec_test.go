package ocpp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCall(t *testing.T) {
	raw := []byte(`[2,"1234","BootNotification",{"chargePointVendor":"Acme","chargePointModel":"X1"}]`)
	f, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, Call, f.Type)
	assert.Equal(t, "1234", f.UniqueID)
	assert.Equal(t, ActionBootNotification, f.Action)
	assert.JSONEq(t, `{"chargePointVendor":"Acme","chargePointModel":"X1"}`, string(f.Payload))
}

func TestDecodeCallMissingPayloadDefaultsToEmptyObject(t *testing.T) {
	raw := []byte(`[2,"1234","Heartbeat"]`)
	f, err := Decode(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(f.Payload))
}

func TestDecodeCallResult(t *testing.T) {
	raw := []byte(`[3,"1234",{"status":"Accepted"}]`)
	f, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, CallResult, f.Type)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(f.Payload))
}

func TestDecodeCallError(t *testing.T) {
	raw := []byte(`[4,"1234","NotImplemented","unsupported action",{}]`)
	f, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, CallError, f.Type)
	assert.Equal(t, ErrorNotImplemented, f.ErrorCode)
	assert.Equal(t, "unsupported action", f.ErrorDescription)
}

func TestDecodeRejectsBadShapes(t *testing.T) {
	cases := map[string]string{
		"not an array":           `{"a":1}`,
		"too short":               `[2,"1"]`,
		"too long":                `[2,"1","a",{},{},{}]`,
		"bad message type":        `[9,"1","a",{}]`,
		"unique_id not a string":  `[2,1,"a",{}]`,
		"call payload not object": `[2,"1","BootNotification",[1,2,3]]`,
		"call error too short":    `[4,"1","NotImplemented"]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.Error(t, err)
			var fe *FrameError
			require.ErrorAs(t, err, &fe)
		})
	}
}

func TestDecodeCallErrorRecoversUniqueID(t *testing.T) {
	_, err := Decode([]byte(`[2,"abc","BootNotification",[1,2,3]]`))
	require.Error(t, err)
	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Recoverable())
	assert.Equal(t, "abc", fe.UniqueID)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	parsed, err := time.Parse(time.RFC3339, "2026-07-31T12:00:00Z")
	require.NoError(t, err)
	payload := BootNotificationResponse{
		Status:      RegistrationAccepted,
		CurrentTime: NewDateTime(parsed),
		Interval:    300,
	}
	raw, err := EncodeCallResult("99", payload)
	require.NoError(t, err)

	f, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, CallResult, f.Type)
	assert.Equal(t, "99", f.UniqueID)
	assert.JSONEq(t, `{"status":"Accepted","currentTime":"2026-07-31T12:00:00Z","interval":300}`, string(f.Payload))
}

func TestEncodeCall(t *testing.T) {
	raw, err := EncodeCall("77", ActionRemoteStartTransaction, RemoteStartTransactionRequest{IdTag: "tag-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `[2,"77","RemoteStartTransaction",{"idTag":"tag-1"}]`, string(raw))
}

func TestEncodeCallError(t *testing.T) {
	raw, err := EncodeCallError("77", ErrorFormationViolation, "bad frame", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"77","FormationViolation","bad frame",{}]`, string(raw))
}
