package utils

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

func ParseUUID(uuidStr string) (uuid.UUID, error) {
	return uuid.Parse(uuidStr)
}

// GenerateOrderID creates a human readable booking reference.
// Format: HOLD-YYYYMMDD-HHMMSS-RANDOM
func GenerateOrderID(now time.Time) string {
	datePart := now.Format("20060102")
	timePart := now.Format("150405")
	randomPart := fmt.Sprintf("%04d", rand.Intn(10000))

	return fmt.Sprintf("HOLD-%s-%s-%s", datePart, timePart, randomPart)
}
