package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// StatusActive is the status every auction car gets on import.
const StatusActive = "active"

// RawRecord is one auction vehicle as received from an import file or a
// scraper. Every field is optional and may be malformed; decoding never fails
// on a field's type.
type RawRecord struct {
	AuctionID        Numeric `json:"auctionId,omitzero"`
	Title            Text    `json:"title,omitempty"`
	Make             Text    `json:"make,omitempty"`
	Model            Text    `json:"model,omitempty"`
	Price            Numeric `json:"price,omitzero"`
	Mileage          Numeric `json:"mileage,omitzero"`
	MileageFormatted Text    `json:"mileageFormatted,omitempty"`
	Fuel             Text    `json:"fuel,omitempty"`
	Transmission     Text    `json:"transmission,omitempty"`
	Country          Text    `json:"country,omitempty"`
	Location         Text    `json:"location,omitempty"`
	ImageURL         Text    `json:"imageUrl,omitempty"`
	DetailURL        Text    `json:"detailUrl,omitempty"`
	Year             Numeric `json:"year,omitzero"`
	EndTime          EndTime `json:"endTime,omitzero"`
}

// AuctionCar is the canonical, persisted auction listing.
type AuctionCar struct {
	ID           int64     `json:"id,omitempty"`
	ExternalID   string    `json:"external_id"`
	Title        string    `json:"title"`
	Make         string    `json:"make,omitempty"`
	Model        string    `json:"model,omitempty"`
	StartPrice   float64   `json:"start_price"`
	Year         int       `json:"year"`
	EndDate      time.Time `json:"end_date"`
	ExternalURL  string    `json:"external_url"`
	Status       string    `json:"status"`
	Mileage      string    `json:"mileage,omitempty"`
	FuelType     string    `json:"fuel_type,omitempty"`
	Transmission string    `json:"transmission,omitempty"`
	Location     string    `json:"location,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Text is a string field that also accepts JSON numbers and booleans.
// Objects, arrays and null decode to "".
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*t = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*t = ""
			return nil
		}
		*t = Text(strings.TrimSpace(s))
	case 't', 'f':
		*t = Text(string(data))
	case '{', '[', 'n':
		*t = ""
	default:
		*t = Text(string(data))
	}
	return nil
}

// String returns the trimmed value.
func (t Text) String() string { return strings.TrimSpace(string(t)) }

// Numeric holds a field that sources send either as a JSON number or as a
// formatted string ("€ 12.500", "45,000 km").
type Numeric struct {
	Present  bool
	IsNumber bool
	Number   float64
	Raw      string
}

// Num builds a numeric-valued Numeric.
func Num(v float64) Numeric { return Numeric{Present: true, IsNumber: true, Number: v} }

// Str builds a string-valued Numeric.
func Str(s string) Numeric { return Numeric{Present: true, Raw: s} }

func (n *Numeric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*n = Numeric{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	n.Present = true
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			n.Raw = s
		}
	case '{', '[', 't', 'f':
		// present but unusable
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err == nil {
			n.IsNumber = true
			n.Number = f
		}
	}
	return nil
}

func (n Numeric) MarshalJSON() ([]byte, error) {
	switch {
	case !n.Present:
		return []byte("null"), nil
	case n.IsNumber:
		return json.Marshal(n.Number)
	default:
		return json.Marshal(n.Raw)
	}
}

// IsZero lets omitzero skip absent values.
func (n Numeric) IsZero() bool { return !n.Present }

// String renders the value as text: the raw string, or the number without
// trailing zeros.
func (n Numeric) String() string {
	if !n.Present {
		return ""
	}
	if n.IsNumber {
		return strconv.FormatFloat(n.Number, 'f', -1, 64)
	}
	return strings.TrimSpace(n.Raw)
}

// EndTime is the auction end in one of the shapes sources use: an ISO
// string, or an object carrying a locale-formatted "fullDate"
// ("DD/MM/YYYY HH:MM").
type EndTime struct {
	Present  bool
	IsObject bool
	ISO      string
	FullDate string
}

func (e *EndTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*e = EndTime{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	e.Present = true
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			e.ISO = s
		}
	case '{':
		e.IsObject = true
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil
		}
		if raw, ok := obj["fullDate"]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				e.FullDate = s
			}
		}
	default:
		e.ISO = string(data)
	}
	return nil
}

func (e EndTime) MarshalJSON() ([]byte, error) {
	switch {
	case !e.Present:
		return []byte("null"), nil
	case e.IsObject:
		obj := map[string]string{}
		if e.FullDate != "" {
			obj["fullDate"] = e.FullDate
		}
		return json.Marshal(obj)
	default:
		return json.Marshal(e.ISO)
	}
}

func (e EndTime) IsZero() bool { return !e.Present }

// DecodeRawRecords accepts a JSON document that is either a single object or
// an array of objects.
func DecodeRawRecords(data []byte) ([]RawRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}
	if data[0] == '{' {
		var one RawRecord
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, err
		}
		return []RawRecord{one}, nil
	}
	var many []RawRecord
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, err
	}
	return many, nil
}
