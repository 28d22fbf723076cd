package models

import (
	"bytes"
	"encoding/json"
)

// RainWindow is the accumulation window the classifier reads from each entry.
const RainWindow = "3h"

// ForecastQuery addresses one forecast request. Both fields are required.
type ForecastQuery struct {
	City   string `json:"city"    validate:"required"`
	APIKey string `json:"-"       validate:"required"`
}

// ForecastResponse is the provider payload as returned; entries are not normalized.
// Only a payload that is not a JSON object fails to decode. Mistyped fields decode to
// their zero value so one bad field never hides the rain data next to it.
type ForecastResponse struct {
	Cod  string          `json:"cod"`
	Cnt  int             `json:"cnt"`
	List []ForecastEntry `json:"list"`
	City ForecastCity    `json:"city"`
}

func (r *ForecastResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Cod  json.RawMessage `json:"cod"`
		Cnt  json.RawMessage `json:"cnt"`
		List json.RawMessage `json:"list"`
		City json.RawMessage `json:"city"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	items := decodeOrZero[[]json.RawMessage](raw.List)
	list := make([]ForecastEntry, 0, len(items))
	for _, item := range items {
		var entry ForecastEntry
		_ = entry.UnmarshalJSON(item)
		list = append(list, entry)
	}

	*r = ForecastResponse{
		Cod:  codeString(raw.Cod),
		Cnt:  decodeOrZero[int](raw.Cnt),
		List: list,
		City: decodeOrZero[ForecastCity](raw.City),
	}
	return nil
}

type ForecastCity struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

// ForecastEntry is one 3-hour record. Rain is nil when the provider omitted it.
type ForecastEntry struct {
	Dt    int64         `json:"dt"`
	DtTxt string        `json:"dt_txt"`
	Rain  Precipitation `json:"rain,omitempty"`
}

// UnmarshalJSON never fails: a non-object entry or a mistyped field reads as absent.
func (e *ForecastEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Dt    json.RawMessage `json:"dt"`
		DtTxt json.RawMessage `json:"dt_txt"`
		Rain  json.RawMessage `json:"rain"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		*e = ForecastEntry{}
		return nil
	}

	out := ForecastEntry{
		Dt:    decodeOrZero[int64](raw.Dt),
		DtTxt: decodeOrZero[string](raw.DtTxt),
	}
	if len(raw.Rain) > 0 && !isNull(raw.Rain) {
		_ = out.Rain.UnmarshalJSON(raw.Rain)
	}
	*e = out
	return nil
}

// Precipitation maps an accumulation window to an amount.
// Non-numeric values and non-object payloads decode to an empty map instead of failing the response.
type Precipitation map[string]float64

func (p *Precipitation) UnmarshalJSON(data []byte) error {
	out := Precipitation{}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		*p = out
		return nil
	}

	for k, v := range raw {
		if f, ok := v.(float64); ok {
			out[k] = f
		}
	}
	*p = out
	return nil
}

func decodeOrZero[T any](raw json.RawMessage) T {
	var v T
	if len(raw) == 0 {
		return v
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero
	}
	return v
}

// codeString accepts "200" and 200; the provider sends both depending on the endpoint.
func codeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
