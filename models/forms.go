package models

// FormField is one flat editable field as handed over by the UI layer, in
// display order. Names follow the appliance convention prefix[_index]_property
// (e.g. "sensor_2_alarm_min") or plain prefix_property for singleton forms.
type FormField struct {
	Name  string
	Value string
}

// FormKind discriminates which schema rebuilds a flat field list. The kind is
// known from context (which settings page was submitted), never parsed from
// field names.
type FormKind string

const (
	FormSystem      FormKind = "system"
	FormWeather     FormKind = "weather"
	FormProfile     FormKind = "profile"
	FormSensors     FormKind = "sensors"
	FormSwitches    FormKind = "switches"
	FormDoors       FormKind = "doors"
	FormWebcams     FormKind = "webcams"
	FormEnvironment FormKind = "environment"
)

// FormGrouping says how a kind's reconstructed records are organized.
type FormGrouping int

const (
	// GroupSingleton produces one flat record; the field suffix after the
	// kind prefix becomes the key.
	GroupSingleton FormGrouping = iota
	// GroupOrdered produces an ordered list of records; the numeric index in
	// the field name only separates groups and is discarded.
	GroupOrdered
	// GroupKeyed produces a map keyed by the extracted index (the environment
	// form, keyed by subsystem name).
	GroupKeyed
)

// FormSchema describes one form kind explicitly: the field-name prefix, the
// grouping discriminator, the accepted per-record properties, and which
// values need date or clock-time conversion.
type FormSchema struct {
	Kind       FormKind
	Prefix     string
	Grouping   FormGrouping
	Properties []string
	// DateField names the singleton field whose value is a display-format
	// date converted to epoch seconds.
	DateField string
	// TimeProperties name repeating-group properties whose values are HH:MM
	// clock times converted to epoch seconds of the current day.
	TimeProperties []string
}

// FormRecord is the reconstructed form ready for submission. Exactly one of
// the three shapes is populated, matching the schema's grouping.
type FormRecord struct {
	Single map[string]interface{}
	Items  []map[string]interface{}
	Keyed  map[string]map[string]interface{}
}

// Body returns the value serialized as the outgoing request body.
func (r *FormRecord) Body() interface{} {
	switch {
	case r.Single != nil:
		return r.Single
	case r.Keyed != nil:
		return r.Keyed
	default:
		return r.Items
	}
}
