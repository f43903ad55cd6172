package ws

import "encoding/json"

// Feed events pushed to dashboard clients.
const (
	EventConnectionEstablished = "connection_established"
	EventLatestEnergyData      = "latest_energy_data"
	EventCurrentPower          = "current_power"
	EventTodayData             = "today_data"
	EventPowerView             = "power_view"
	EventMonthlyData           = "monthly_data"
	EventConsumptionPerTonne   = "consumption_per_tonne"
	EventError                 = "error"
)

// Envelope is the wire format of every feed message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals data under event.
func NewEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// MessagePayload carries connection and error text.
type MessagePayload struct {
	Message string `json:"message"`
}

// CurrentPowerPayload is the current_power event body.
type CurrentPowerPayload struct {
	TotalPower float64 `json:"TotalPower"`
}

// MonthlyPayload is the monthly_data event body.
type MonthlyPayload struct {
	ThisMonthConsumption     float64 `json:"ThisMonthConsumption"`
	PreviousMonthConsumption float64 `json:"PreviousMonthConsumption"`
}

// PerTonnePayload is the consumption_per_tonne event body.
type PerTonnePayload struct {
	ThisMonthConsumptionPerTonne     float64 `json:"ThisMonthConsumptionPerTonne"`
	PreviousMonthConsumptionPerTonne float64 `json:"PreviousMonthConsumptionPerTonne"`
}
