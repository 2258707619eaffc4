package request

type SeatPosition struct {
	Row    int `json:"row" validate:"required,min=1"`
	Column int `json:"column" validate:"required,min=1"`
}

type CreateBookingRequest struct {
	ScheduleID string         `json:"schedule_id" validate:"required,uuid"`
	Seats      []SeatPosition `json:"seats" validate:"required,min=1,dive"`
}

// ExtendHoldRequest of zero seconds extends by the configured hold duration.
type ExtendHoldRequest struct {
	DurationSeconds int `json:"duration_seconds" validate:"omitempty,min=1,max=3600"`
}

// ConfirmPaymentRequest is sent by the payment flow after capture.
type ConfirmPaymentRequest struct {
	BookingID        string `json:"booking_id" validate:"required,uuid"`
	PaymentReference string `json:"payment_reference" validate:"omitempty,max=128"`
}
