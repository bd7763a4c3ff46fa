package services

import (
	"fmt"
	"strings"
	"time"

	"vivarium/models"

	"go.uber.org/zap"
)

// Display formats used by the appliance UI for editable date and clock-time
// values.
const (
	dateDisplayLayout  = "02/01/2006"
	clockDisplayLayout = "15:04"
)

// formSchemas declares, per form kind, how flat field names map back onto
// records. The schema replaces any pattern-matching on field names: a field
// whose extracted property is not listed here is skipped.
var formSchemas = map[models.FormKind]models.FormSchema{
	models.FormSystem: {
		Kind:     models.FormSystem,
		Prefix:   "system",
		Grouping: models.GroupSingleton,
	},
	models.FormWeather: {
		Kind:     models.FormWeather,
		Prefix:   "weather",
		Grouping: models.GroupSingleton,
	},
	models.FormProfile: {
		Kind:      models.FormProfile,
		Prefix:    "profile",
		Grouping:  models.GroupSingleton,
		DateField: "birthday",
	},
	models.FormSensors: {
		Kind:     models.FormSensors,
		Prefix:   "sensor",
		Grouping: models.GroupOrdered,
		Properties: []string{
			"id", "name", "type", "alarm_min", "alarm_max",
			"limit_min", "limit_max", "max_diff", "exclude_avg",
		},
	},
	models.FormSwitches: {
		Kind:     models.FormSwitches,
		Prefix:   "switch",
		Grouping: models.GroupOrdered,
		Properties: []string{
			"id", "name", "hardware", "address",
			"power_wattage", "water_flow",
		},
	},
	models.FormDoors: {
		Kind:       models.FormDoors,
		Prefix:     "door",
		Grouping:   models.GroupOrdered,
		Properties: []string{"id", "name", "hardware", "address"},
	},
	models.FormWebcams: {
		Kind:     models.FormWebcams,
		Prefix:   "webcam",
		Grouping: models.GroupOrdered,
		Properties: []string{
			"id", "name", "location", "resolution", "rotation", "archive",
		},
	},
	models.FormEnvironment: {
		Kind:     models.FormEnvironment,
		Grouping: models.GroupKeyed,
		Properties: []string{
			"mode", "on", "off", "enabled", "day_night_difference",
		},
		TimeProperties: []string{"on", "off"},
	},
}

// FormService rebuilds the flat editable fields of a settings page into the
// structured records the appliance config API accepts.
type FormService struct {
	logger *zap.Logger
}

func NewFormService(logger *zap.Logger) *FormService {
	return &FormService{logger: logger}
}

// Reconstruct turns an ordered flat field list into a FormRecord according to
// the kind's schema. Fields with no name or a name outside the schema are
// skipped. Any conversion error aborts the whole reconstruction so no partial
// record is ever submitted.
func (f *FormService) Reconstruct(kind models.FormKind, fields []models.FormField) (*models.FormRecord, error) {
	schema, ok := formSchemas[kind]
	if !ok {
		return nil, fmt.Errorf("unknown form kind %q", kind)
	}

	if schema.Grouping == models.GroupSingleton {
		return f.reconstructSingleton(schema, fields)
	}
	return f.reconstructGroups(schema, fields)
}

// reconstructSingleton builds the single flat record of system/weather/profile
// style forms: the suffix after the kind prefix becomes the key.
func (f *FormService) reconstructSingleton(schema models.FormSchema, fields []models.FormField) (*models.FormRecord, error) {
	record := make(map[string]interface{}, len(fields))
	prefix := schema.Prefix + "_"

	for _, field := range fields {
		if field.Name == "" || !strings.HasPrefix(field.Name, prefix) {
			continue
		}
		key := strings.TrimPrefix(field.Name, prefix)
		if key == "" {
			continue
		}
		if schema.DateField != "" && key == schema.DateField {
			ts, err := dateToEpoch(field.Value)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field.Name, err)
			}
			record[key] = ts
			continue
		}
		record[key] = field.Value
	}

	return &models.FormRecord{Single: record}, nil
}

// reconstructGroups scans the fields in their given order, accumulating
// consecutive same-index fields into one in-progress record and flushing it
// when the index changes and at the end of the scan.
func (f *FormService) reconstructGroups(schema models.FormSchema, fields []models.FormField) (*models.FormRecord, error) {
	record := &models.FormRecord{}
	if schema.Grouping == models.GroupKeyed {
		record.Keyed = make(map[string]map[string]interface{})
	} else {
		record.Items = []map[string]interface{}{}
	}

	currentIndex := ""
	current := map[string]interface{}{}

	flush := func() {
		// A group with at most one property is trailing noise, not a record.
		if len(current) > 1 {
			if schema.Grouping == models.GroupKeyed {
				record.Keyed[currentIndex] = current
			} else {
				record.Items = append(record.Items, current)
			}
		}
		current = map[string]interface{}{}
	}

	for _, field := range fields {
		index, property, ok := splitFieldName(schema, field.Name)
		if !ok {
			f.logger.Debug("Skipping unrecognized form field",
				zap.String("kind", string(schema.Kind)),
				zap.String("name", field.Name))
			continue
		}
		if index != currentIndex {
			flush()
			currentIndex = index
		}
		value, err := convertProperty(schema, property, field.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		current[property] = value
	}
	flush()

	return record, nil
}

// splitFieldName extracts (index, property) from a field name. Ordered kinds
// expect prefix_index_property; the keyed environment kind expects
// index_property where the index is the subsystem name.
func splitFieldName(schema models.FormSchema, name string) (string, string, bool) {
	if name == "" {
		return "", "", false
	}

	rest := name
	if schema.Grouping == models.GroupOrdered {
		prefix := schema.Prefix + "_"
		if !strings.HasPrefix(name, prefix) {
			return "", "", false
		}
		rest = strings.TrimPrefix(name, prefix)
	}

	index, property, found := strings.Cut(rest, "_")
	if !found || index == "" || property == "" {
		return "", "", false
	}
	if !schemaHasProperty(schema, property) {
		return "", "", false
	}
	return index, property, true
}

func schemaHasProperty(schema models.FormSchema, property string) bool {
	for _, p := range schema.Properties {
		if p == property {
			return true
		}
	}
	return false
}

// convertProperty applies the schema's value conversions: clock-time
// properties become epoch seconds, everything else stays verbatim.
func convertProperty(schema models.FormSchema, property, value string) (interface{}, error) {
	for _, p := range schema.TimeProperties {
		if p == property {
			return clockToEpoch(value)
		}
	}
	return value, nil
}

// clockToEpoch converts a display clock time (HH:MM) to epoch seconds of the
// current day in local time.
func clockToEpoch(value string) (int64, error) {
	t, err := time.Parse(clockDisplayLayout, value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", value, err)
	}
	now := time.Now()
	local := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.Local)
	return local.Unix(), nil
}

// dateToEpoch converts a display date (DD/MM/YYYY) to epoch seconds at local
// midnight.
func dateToEpoch(value string) (int64, error) {
	t, err := time.ParseInLocation(dateDisplayLayout, value, time.Local)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return t.Unix(), nil
}
