package ocpp

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator/v10, grounded on the teacher's
// internal/domain/validation/validator.go, trimmed to the action
// allowlist spec.md §6 names and to this data model's station-id rule
// (opaque, ≤128 bytes, spec.md §3 — not the teacher's 20-char limit).
type Validator struct {
	validate *validator.Validate
}

type ValidationError struct {
	Field   string
	Tag     string
	Message string
}

func (e ValidationError) Error() string { return e.Message }

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Message
	}
	return strings.Join(msgs, "; ")
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidateStruct validates a decoded payload struct's tags.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fmt.Sprintf("field %q failed validation %q", fe.Field(), fe.Tag()),
		})
	}
	return out
}

var validActions = map[Action]bool{
	ActionAuthorize:                     true,
	ActionBootNotification:              true,
	ActionDataTransfer:                  true,
	ActionHeartbeat:                     true,
	ActionMeterValues:                   true,
	ActionStartTransaction:              true,
	ActionStatusNotification:            true,
	ActionStopTransaction:               true,
	ActionDiagnosticsStatusNotification: true,
	ActionFirmwareStatusNotification:    true,
}

// IsSupportedAction reports whether a is one of the Call actions this
// central system accepts from a station (spec.md §6).
func IsSupportedAction(a Action) bool { return validActions[a] }

var stationIDPattern = regexp.MustCompile(`^[[:print:]]{1,128}$`)

// ValidateStationID enforces spec.md §3's "opaque ≤128 bytes" rule.
func ValidateStationID(id string) error {
	if id == "" {
		return ValidationError{Field: "station_id", Tag: "required", Message: "station id is required"}
	}
	if len(id) > 128 {
		return ValidationError{Field: "station_id", Tag: "max", Message: "station id exceeds 128 bytes"}
	}
	if !stationIDPattern.MatchString(id) {
		return ValidationError{Field: "station_id", Tag: "printable", Message: "station id must be printable"}
	}
	return nil
}
