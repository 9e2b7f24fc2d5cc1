package cache

import "fmt"

func JobStatusKey(jobID string) string {
	return fmt.Sprintf("job:status:%s", jobID)
}

func JobResultKey(jobID string) string {
	return fmt.Sprintf("job:result:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
