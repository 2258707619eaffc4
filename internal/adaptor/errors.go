package adaptor

import (
	"errors"
	"net/http"

	"smarter-store/internal/dto/response"
	"smarter-store/internal/usecase"
	"smarter-store/pkg/utils"

	"go.uber.org/zap"
)

const (
	codeSeatConflict    = "SEAT_CONFLICT"
	codeAlreadyTerminal = "ALREADY_TERMINAL"
	codeBookingExpired  = "BOOKING_EXPIRED"
)

// handleServiceError maps usecase errors to the response envelope.
func handleServiceError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	var conflict *usecase.ConflictError

	switch {
	case errors.As(err, &conflict):
		log.Info(operation+" failed - seats unavailable",
			zap.Any("seats", conflict.Positions),
			zap.String("operation", operation))
		utils.ResponseConflict(w, "Some seats are no longer available", response.ConflictResponse{
			Code:  codeSeatConflict,
			Seats: conflict.Positions,
		})

	case errors.Is(err, usecase.ErrExpired):
		log.Warn(operation+" failed - booking expired",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseConflict(w, "Booking hold has expired", response.StateErrorResponse{
			Code:           codeBookingExpired,
			RefundRequired: operation == "confirm payment",
		})

	case errors.Is(err, usecase.ErrAlreadyTerminal):
		log.Info(operation+" failed - already terminal",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseConflict(w, "Booking is already closed", response.StateErrorResponse{
			Code: codeAlreadyTerminal,
		})

	case errors.Is(err, usecase.ErrNotFound), errors.Is(err, usecase.ErrLayoutNotFound):
		log.Warn(operation+" failed - not found",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseNotFound(w, err.Error())

	case errors.Is(err, usecase.ErrForbidden):
		log.Warn(operation+" failed - forbidden",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseForbidden(w, "Booking belongs to another user")

	case errors.Is(err, usecase.ErrInvalidRequest):
		log.Warn("Invalid input for "+operation,
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseBadRequest(w, err.Error(), nil)

	case errors.Is(err, usecase.ErrLeaseActive):
		utils.ResponseConflict(w, "Booking lease is still active", nil)

	default:
		log.Error("Failed to "+operation,
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
