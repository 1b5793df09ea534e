package ocpp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorStruct(t *testing.T) {
	v := NewValidator()

	ok := BootNotificationRequest{ChargePointVendor: "Acme", ChargePointModel: "X1"}
	require.NoError(t, v.ValidateStruct(ok))

	bad := BootNotificationRequest{ChargePointModel: "X1"}
	err := v.ValidateStruct(bad)
	require.Error(t, err)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.NotEmpty(t, verrs)
}

func TestStatusNotificationConnectorZeroIsValid(t *testing.T) {
	v := NewValidator()
	req := StatusNotificationRequest{
		ConnectorId: 0,
		ErrorCode:   CPErrorNoError,
		Status:      StatusAvailable,
	}
	assert.NoError(t, v.ValidateStruct(req), "connector_id 0 designates the charge point itself and must be accepted")
}

func TestIsSupportedAction(t *testing.T) {
	assert.True(t, IsSupportedAction(ActionBootNotification))
	assert.True(t, IsSupportedAction(ActionMeterValues))
	assert.False(t, IsSupportedAction(Action("UpdateFirmware")))
}

func TestValidateStationID(t *testing.T) {
	assert.NoError(t, ValidateStationID("cp-001"))
	assert.Error(t, ValidateStationID(""))
	assert.Error(t, ValidateStationID(strings.Repeat("a", 129)))
	assert.NoError(t, ValidateStationID(strings.Repeat("a", 128)))
}
