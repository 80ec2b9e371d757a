package model

// PlantReading is one plant's entry in plant_info.
type PlantReading struct {
	Moisture      float64 `json:"moisture"`
	LastWateredAt int64   `json:"lastWateredAt"` // unix seconds, 0 = never watered
}

// GlobalReading holds pod-wide climate values. Either both fields are set
// or neither is; the zero value encodes as {}.
type GlobalReading struct {
	AvgTempC    *float64 `json:"avgTempC,omitempty"`
	AvgHumidity *float64 `json:"avgHumidity,omitempty"`
}

// NewGlobalReading returns a fully populated GlobalReading.
func NewGlobalReading(tempC, humidity float64) GlobalReading {
	return GlobalReading{AvgTempC: &tempC, AvgHumidity: &humidity}
}

// Complete reports whether both climate values are present.
func (g GlobalReading) Complete() bool {
	return g.AvgTempC != nil && g.AvgHumidity != nil
}

// CurrentReadings is the body served by GET /current.
type CurrentReadings struct {
	PlantInfo  map[string]PlantReading `json:"plant_info"`
	GlobalInfo GlobalReading           `json:"global_info"`
}

// TelemetryPayload is the record POSTed to the collector.
type TelemetryPayload struct {
	PodID      string                  `json:"podId"`
	At         int64                   `json:"at"`
	Watered    bool                    `json:"watered"`
	PlantInfo  map[string]PlantReading `json:"plant_info"`
	GlobalInfo GlobalReading           `json:"global_info"`
}
