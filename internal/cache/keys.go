package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func PredictionKey(jobID uuid.UUID) string {
	return fmt.Sprintf("prediction:%s", jobID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
