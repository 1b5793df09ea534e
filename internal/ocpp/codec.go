package ocpp

import (
	"encoding/json"
	"fmt"
)

// FrameError is returned by Decode when the outer array shape is invalid.
// Grounded on the teacher's SerializationError (domain/serialization) —
// same named-error-type-with-a-code idiom, rewritten around spec.md
// §4.1/§7's exact FormationViolation-vs-close-1002 distinction.
type FrameError struct {
	UniqueID string // recovered unique_id, empty if unrecoverable
	Reason   string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("malformed OCPP frame: %s", e.Reason)
}

// Recoverable reports whether enough of the frame was parsed to answer
// with a CallError instead of closing the connection (spec.md §7).
func (e *FrameError) Recoverable() bool { return e.UniqueID != "" }

// Frame is the decoded, type-discriminated form of an array frame.
type Frame struct {
	Type             MessageType
	UniqueID         string
	Action           Action          // Call only
	Payload          json.RawMessage // Call/CallResult only
	ErrorCode        ErrorCode       // CallError only
	ErrorDescription string          // CallError only
	ErrorDetails     json.RawMessage // CallError only
}

// Decode validates and parses one OCPP array frame per spec.md §4.1:
// outermost is a JSON array of length 3-5; element 0 in {2,3,4}; element 1
// a string; for Call, element 2 is the action name and element 3 an
// object (defaulting to {} when absent).
func Decode(raw []byte) (*Frame, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, &FrameError{Reason: "not a JSON array: " + err.Error()}
	}
	if len(arr) < 3 || len(arr) > 5 {
		return nil, &FrameError{Reason: fmt.Sprintf("array length %d out of range [3,5]", len(arr))}
	}

	var typeNum int
	if err := json.Unmarshal(arr[0], &typeNum); err != nil {
		return nil, &FrameError{Reason: "message type is not a number"}
	}
	msgType := MessageType(typeNum)
	if msgType != Call && msgType != CallResult && msgType != CallError {
		return nil, &FrameError{Reason: fmt.Sprintf("unknown message type %d", typeNum)}
	}

	var uniqueID string
	if err := json.Unmarshal(arr[1], &uniqueID); err != nil {
		return nil, &FrameError{Reason: "unique_id is not a string"}
	}

	f := &Frame{Type: msgType, UniqueID: uniqueID}

	switch msgType {
	case Call:
		if len(arr) < 3 {
			return nil, &FrameError{UniqueID: uniqueID, Reason: "Call missing action"}
		}
		var action string
		if err := json.Unmarshal(arr[2], &action); err != nil {
			return nil, &FrameError{UniqueID: uniqueID, Reason: "action is not a string"}
		}
		f.Action = Action(action)
		if len(arr) >= 4 && len(arr[3]) > 0 {
			if !isJSONObject(arr[3]) {
				return nil, &FrameError{UniqueID: uniqueID, Reason: "Call payload is not an object"}
			}
			f.Payload = arr[3]
		} else {
			f.Payload = json.RawMessage("{}")
		}
	case CallResult:
		if len(arr) < 3 {
			return nil, &FrameError{UniqueID: uniqueID, Reason: "CallResult missing payload"}
		}
		f.Payload = arr[2]
	case CallError:
		if len(arr) < 4 {
			return nil, &FrameError{UniqueID: uniqueID, Reason: "CallError missing error_code/description"}
		}
		var code, desc string
		if err := json.Unmarshal(arr[2], &code); err != nil {
			return nil, &FrameError{UniqueID: uniqueID, Reason: "error_code is not a string"}
		}
		if err := json.Unmarshal(arr[3], &desc); err != nil {
			return nil, &FrameError{UniqueID: uniqueID, Reason: "error_description is not a string"}
		}
		f.ErrorCode = ErrorCode(code)
		f.ErrorDescription = desc
		if len(arr) == 5 {
			f.ErrorDetails = arr[4]
		}
	}
	return f, nil
}

func isJSONObject(raw json.RawMessage) bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	_, ok := v.(map[string]interface{})
	return ok
}

// EncodeCall encodes a central-initiated Call frame: [2, unique_id, action, payload].
func EncodeCall(uniqueID string, action Action, payload interface{}) ([]byte, error) {
	p, err := normalizePayload(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]interface{}{Call, uniqueID, action, p})
}

// EncodeCallResult encodes [3, unique_id, payload].
func EncodeCallResult(uniqueID string, payload interface{}) ([]byte, error) {
	p, err := normalizePayload(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]interface{}{CallResult, uniqueID, p})
}

// EncodeCallError encodes [4, unique_id, error_code, error_description, details].
func EncodeCallError(uniqueID string, code ErrorCode, description string, details interface{}) ([]byte, error) {
	if details == nil {
		details = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{CallError, uniqueID, code, description, details})
}

// normalizePayload runs the JSON-normalize step spec.md §4.4 requires: a
// round-trip through json.Marshal/Unmarshal coerces DateTime, enum, and
// pointer fields to their wire forms (string/number/bool), so callers can
// pass the same struct they built the response with.
func normalizePayload(payload interface{}) (interface{}, error) {
	if payload == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}
	return v, nil
}
