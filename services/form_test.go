package services

import (
	"testing"
	"time"

	"vivarium/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReconstructOrderedGroups(t *testing.T) {
	svc := NewFormService(zap.NewNop())

	record, err := svc.Reconstruct(models.FormSensors, []models.FormField{
		{Name: "sensor_0_name", Value: "A"},
		{Name: "sensor_0_alarm_min", Value: "5"},
		{Name: "sensor_1_name", Value: "B"},
		{Name: "sensor_1_alarm_min", Value: "9"},
	})
	require.NoError(t, err)
	require.Len(t, record.Items, 2)
	assert.Equal(t, map[string]interface{}{"name": "A", "alarm_min": "5"}, record.Items[0])
	assert.Equal(t, map[string]interface{}{"name": "B", "alarm_min": "9"}, record.Items[1])
}

func TestReconstructEnvironmentKeyedByIndex(t *testing.T) {
	svc := NewFormService(zap.NewNop())

	record, err := svc.Reconstruct(models.FormEnvironment, []models.FormField{
		{Name: "heater_mode", Value: "timer"},
		{Name: "heater_on", Value: "08:00"},
		{Name: "sprayer_mode", Value: "sensor"},
		{Name: "sprayer_on", Value: "10:30"},
	})
	require.NoError(t, err)
	require.Len(t, record.Keyed, 2)
	require.Contains(t, record.Keyed, "heater")
	require.Contains(t, record.Keyed, "sprayer")

	heater := record.Keyed["heater"]
	assert.Equal(t, "timer", heater["mode"])

	now := time.Now()
	want := time.Date(now.Year(), now.Month(), now.Day(), 8, 0, 0, 0, time.Local).Unix()
	assert.Equal(t, want, heater["on"])
}

func TestReconstructSkipsUnmatchedFields(t *testing.T) {
	svc := NewFormService(zap.NewNop())

	record, err := svc.Reconstruct(models.FormSensors, []models.FormField{
		{Name: "", Value: "nameless"},
		{Name: "csrf_token", Value: "abc"},
		{Name: "sensor_0_bogus_property", Value: "x"},
		{Name: "sensor_0_name", Value: "A"},
		{Name: "sensor_0_alarm_max", Value: "30"},
	})
	require.NoError(t, err)
	require.Len(t, record.Items, 1)
	assert.Equal(t, map[string]interface{}{"name": "A", "alarm_max": "30"}, record.Items[0])
}

func TestReconstructDiscardsSinglePropertyGroup(t *testing.T) {
	svc := NewFormService(zap.NewNop())

	record, err := svc.Reconstruct(models.FormSensors, []models.FormField{
		{Name: "sensor_0_name", Value: "A"},
		{Name: "sensor_0_alarm_min", Value: "5"},
		// Trailing group with a single accumulated property is dropped.
		{Name: "sensor_1_name", Value: "B"},
	})
	require.NoError(t, err)
	require.Len(t, record.Items, 1)
	assert.Equal(t, "A", record.Items[0]["name"])
}

func TestReconstructSingletonWithDateField(t *testing.T) {
	svc := NewFormService(zap.NewNop())

	record, err := svc.Reconstruct(models.FormProfile, []models.FormField{
		{Name: "profile_name", Value: "Gecko"},
		{Name: "profile_species", Value: "Eublepharis macularius"},
		{Name: "profile_birthday", Value: "21/03/2019"},
		{Name: "unrelated_field", Value: "ignored"},
	})
	require.NoError(t, err)
	require.NotNil(t, record.Single)

	assert.Equal(t, "Gecko", record.Single["name"])
	assert.Equal(t, "Eublepharis macularius", record.Single["species"])

	want := time.Date(2019, time.March, 21, 0, 0, 0, 0, time.Local).Unix()
	assert.Equal(t, want, record.Single["birthday"])
	assert.NotContains(t, record.Single, "unrelated_field")
}

func TestReconstructAbortsOnBadClockValue(t *testing.T) {
	svc := NewFormService(zap.NewNop())

	record, err := svc.Reconstruct(models.FormEnvironment, []models.FormField{
		{Name: "heater_mode", Value: "timer"},
		{Name: "heater_on", Value: "not-a-time"},
	})
	require.Error(t, err)
	assert.Nil(t, record)
}

func TestReconstructUnknownKind(t *testing.T) {
	svc := NewFormService(zap.NewNop())

	record, err := svc.Reconstruct(models.FormKind("bogus"), nil)
	require.Error(t, err)
	assert.Nil(t, record)
}

func TestFormRecordBody(t *testing.T) {
	single := &models.FormRecord{Single: map[string]interface{}{"a": "1"}}
	assert.Equal(t, single.Single, single.Body())

	keyed := &models.FormRecord{Keyed: map[string]map[string]interface{}{"heater": {"mode": "timer"}}}
	assert.Equal(t, keyed.Keyed, keyed.Body())

	items := &models.FormRecord{Items: []map[string]interface{}{{"name": "A"}}}
	assert.Equal(t, items.Items, items.Body())
}
