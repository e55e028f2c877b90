package services

import (
	"errors"
	"io"
	"testing"

	"auction-importer/models"
	"auction-importer/utils"
)

func newTestValidator(max int) *Validator {
	return NewValidator(utils.NewLoggerTo(io.Discard, utils.LevelDebug), max)
}

func TestValidateFiltersInvalid(t *testing.T) {
	tests := []struct {
		name        string
		input       []models.RawRecord
		wantValid   int
		wantSkipped int
		wantErr     error
	}{
		{
			name: "mixed batch",
			input: []models.RawRecord{
				{Title: "A", DetailURL: "https://x/a"},
				{Title: "", DetailURL: "https://x/b"},
				{Title: "C"},
				{Title: "  ", DetailURL: "https://x/d"},
				{Title: "E", DetailURL: "https://x/e"},
			},
			wantValid:   2,
			wantSkipped: 3,
		},
		{
			name:        "all invalid",
			input:       []models.RawRecord{{Title: "A"}, {DetailURL: "u"}},
			wantValid:   0,
			wantSkipped: 2,
			wantErr:     ErrEmptyBatch,
		},
		{
			name:    "empty input",
			input:   nil,
			wantErr: ErrEmptyBatch,
		},
	}

	v := newTestValidator(100)
	for _, tt := range tests {
		res, err := v.Validate(tt.input)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: error got %v, want %v", tt.name, err, tt.wantErr)
		}
		if len(res.Valid) != tt.wantValid {
			t.Errorf("%s: valid got %d, want %d", tt.name, len(res.Valid), tt.wantValid)
		}
		if res.SkippedCount != tt.wantSkipped {
			t.Errorf("%s: skipped got %d, want %d", tt.name, res.SkippedCount, tt.wantSkipped)
		}
		if len(res.Valid)+res.SkippedCount != len(tt.input) {
			t.Errorf("%s: valid+skipped = %d, want %d", tt.name, len(res.Valid)+res.SkippedCount, len(tt.input))
		}
	}
}

func TestValidateKeepsOrder(t *testing.T) {
	in := []models.RawRecord{
		{Title: "1", DetailURL: "u1"},
		{Title: "skip"},
		{Title: "2", DetailURL: "u2"},
		{Title: "3", DetailURL: "u3"},
	}
	res, err := newTestValidator(0).Validate(in)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	for i, want := range []string{"1", "2", "3"} {
		if res.Valid[i].Title.String() != want {
			t.Errorf("position %d: got %q, want %q", i, res.Valid[i].Title, want)
		}
	}
}

func TestValidateTooManyRecords(t *testing.T) {
	in := make([]models.RawRecord, 4)
	for i := range in {
		in[i] = models.RawRecord{Title: "t", DetailURL: "u"}
	}
	_, err := newTestValidator(3).Validate(in)
	if !errors.Is(err, ErrTooManyRecords) {
		t.Fatalf("got %v, want ErrTooManyRecords", err)
	}
	var ie *InputError
	if !errors.As(err, &ie) || ie.Value != "4" {
		t.Errorf("expected InputError with value 4, got %#v", err)
	}

	if _, err := newTestValidator(4).Validate(in); err != nil {
		t.Errorf("batch at the limit should pass, got %v", err)
	}
}

func TestCheckPayloadSize(t *testing.T) {
	tests := []struct {
		size, max int64
		wantErr   bool
	}{
		{10, 100, false},
		{100, 100, false},
		{101, 100, true},
		{1 << 40, 0, false},
	}
	for _, tt := range tests {
		err := CheckPayloadSize(tt.size, tt.max)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckPayloadSize(%d, %d) err=%v, wantErr %v", tt.size, tt.max, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrPayloadTooLarge) {
			t.Errorf("expected ErrPayloadTooLarge, got %v", err)
		}
	}
}
