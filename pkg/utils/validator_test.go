package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type seat struct {
	Row int `validate:"required,min=1"`
}

type holdRequest struct {
	ScheduleID string `validate:"required,uuid"`
	Seats      []seat `validate:"required,min=1,dive"`
}

func TestValidateStruct(t *testing.T) {
	errs := ValidateStruct(holdRequest{
		ScheduleID: "not-a-uuid",
		Seats:      []seat{{Row: 1}, {Row: 0}},
	})

	assert.Equal(t, map[string]string{
		"ScheduleID":   "Must be a valid UUID",
		"Seats[1].Row": "This field is required",
	}, errs)
	assert.Equal(t, "ScheduleID: Must be a valid UUID; Seats[1].Row: This field is required", FormatValidationErrors(errs))
}

func TestValidateStruct_EmptySlice(t *testing.T) {
	errs := ValidateStruct(holdRequest{ScheduleID: "3f1c2a4e-8d5b-4c7e-9a1f-2b3c4d5e6f70", Seats: []seat{}})

	assert.Equal(t, map[string]string{"Seats": "Must contain at least 1 items"}, errs)
}

func TestValidateStruct_Valid(t *testing.T) {
	assert.Empty(t, ValidateStruct(holdRequest{
		ScheduleID: "3f1c2a4e-8d5b-4c7e-9a1f-2b3c4d5e6f70",
		Seats:      []seat{{Row: 3}},
	}))
}
