package models

import (
	"encoding/json"
	"testing"
)

func TestDecodeRawRecordsShapes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want int
	}{
		{"single object", `{"title":"BMW 320d","detailUrl":"https://x/1"}`, 1},
		{"array", `[{"title":"A"},{"title":"B"},{}]`, 3},
		{"empty array", `[]`, 0},
	}
	for _, tt := range tests {
		got, err := DecodeRawRecords([]byte(tt.doc))
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if len(got) != tt.want {
			t.Errorf("%s: got %d records, want %d", tt.name, len(got), tt.want)
		}
	}
}

func TestDecodeRawRecordsRejectsNonJSON(t *testing.T) {
	for _, doc := range []string{"", "   ", "not json", `"a string"`, `[1,`} {
		if _, err := DecodeRawRecords([]byte(doc)); err == nil {
			t.Errorf("DecodeRawRecords(%q): expected error", doc)
		}
	}
}

func TestRawRecordLooseFields(t *testing.T) {
	doc := `{
		"auctionId": 991,
		"title": "  Audi A4 Avant ",
		"price": "€ 12.500",
		"mileage": 145000,
		"mileageFormatted": "145.000 km",
		"year": "2019",
		"endTime": {"fullDate": "20/03/2025 11:00", "timezone": "CET"},
		"make": {"unexpected": true},
		"model": 4
	}`
	var r RawRecord
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if r.AuctionID.String() != "991" {
		t.Errorf("AuctionID: got %q, want 991", r.AuctionID.String())
	}
	if r.Title.String() != "Audi A4 Avant" {
		t.Errorf("Title: got %q", r.Title)
	}
	if r.Price.IsNumber || r.Price.Raw != "€ 12.500" {
		t.Errorf("Price: got %+v, want raw string", r.Price)
	}
	if !r.Mileage.IsNumber || r.Mileage.Number != 145000 {
		t.Errorf("Mileage: got %+v", r.Mileage)
	}
	if !r.EndTime.IsObject || r.EndTime.FullDate != "20/03/2025 11:00" {
		t.Errorf("EndTime: got %+v", r.EndTime)
	}
	if r.Make != "" {
		t.Errorf("Make: object should decode to empty, got %q", r.Make)
	}
	if r.Model != "4" {
		t.Errorf("Model: number should decode to text, got %q", r.Model)
	}
}

func TestRawRecordMarshalKeepsShapes(t *testing.T) {
	r := RawRecord{
		Title:     "Golf",
		Price:     Str("9.900 €"),
		Year:      Num(2018),
		EndTime:   EndTime{Present: true, IsObject: true, FullDate: "01/04/2025 10:30"},
		DetailURL: "https://x/golf",
	}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back RawRecord
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Price.Raw != "9.900 €" || back.Year.Number != 2018 || back.EndTime.FullDate != "01/04/2025 10:30" {
		t.Errorf("shapes lost in marshal: %s", b)
	}

	var generic map[string]any
	_ = json.Unmarshal(b, &generic)
	if _, ok := generic["mileage"]; ok {
		t.Errorf("absent mileage should be omitted: %s", b)
	}
}
