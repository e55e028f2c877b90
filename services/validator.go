package services

import (
	"fmt"
	"strconv"

	"auction-importer/models"
	"auction-importer/utils"
)

// ValidationResult is the outcome of batch validation.
type ValidationResult struct {
	Valid        []models.RawRecord
	SkippedCount int
}

// Validator enforces batch limits and drops records that cannot become an
// auction car.
type Validator struct {
	logger     *utils.Logger
	maxRecords int
}

// NewValidator creates a Validator. maxRecords <= 0 disables the batch limit.
func NewValidator(logger *utils.Logger, maxRecords int) *Validator {
	return &Validator{logger: logger, maxRecords: maxRecords}
}

// Validate keeps records with a non-empty title and detail URL. The batch
// limit is checked before filtering. ErrEmptyBatch is returned when nothing
// survives; the result is still filled in.
func (v *Validator) Validate(raws []models.RawRecord) (ValidationResult, error) {
	if v.maxRecords > 0 && len(raws) > v.maxRecords {
		return ValidationResult{}, &InputError{
			Field:   "records",
			Value:   strconv.Itoa(len(raws)),
			Wrapped: fmt.Errorf("%w: limit is %d", ErrTooManyRecords, v.maxRecords),
		}
	}

	res := ValidationResult{Valid: make([]models.RawRecord, 0, len(raws))}
	for i, r := range raws {
		if !IsValidRecord(r) {
			res.SkippedCount++
			v.logger.Debug("[validator] skipping record %d: missing title or detailUrl", i)
			continue
		}
		res.Valid = append(res.Valid, r)
	}

	if res.SkippedCount > 0 {
		v.logger.Warn("[validator] skipped %d/%d records without title or detailUrl", res.SkippedCount, len(raws))
	}
	if len(res.Valid) == 0 {
		return res, ErrEmptyBatch
	}
	return res, nil
}

// IsValidRecord reports whether r carries the two fields every car needs.
func IsValidRecord(r models.RawRecord) bool {
	return r.Title.String() != "" && r.DetailURL.String() != ""
}

// CheckPayloadSize rejects documents above max bytes before they are parsed.
func CheckPayloadSize(size, max int64) error {
	if max > 0 && size > max {
		return &InputError{
			Field:   "payload",
			Value:   fmt.Sprintf("%d bytes", size),
			Wrapped: fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLarge, max),
		}
	}
	return nil
}
