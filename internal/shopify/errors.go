package shopify

import (
	"fmt"
	"strings"
)

// NetworkError is a transport failure or a non-2xx HTTP response from the
// admin endpoint. The client never retries these itself; callers decide.
type NetworkError struct {
	Status int
	Body   string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("admin api request failed: %v", e.Err)
	}
	return fmt.Sprintf("admin api returned status %d: %s", e.Status, e.Body)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BusinessError is a validation rejection returned inside a 200 response
// body. These are deterministic and must never be retried.
type BusinessError struct {
	Message string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("admin api rejected request: %s", e.Message)
}

// RetryableError is a throttling rejection. ExecuteWithRetry backs off and
// tries again up to its attempt budget.
type RetryableError struct {
	Message string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("admin api throttled request: %s", e.Message)
}

// throttledCode is the machine-readable throttle signal in
// errors[].extensions.code. Some API versions omit it, so the message text
// is matched as a fallback.
const throttledCode = "THROTTLED"

func isThrottled(errs []ResponseError) bool {
	for _, e := range errs {
		if e.Extensions.Code == throttledCode {
			return true
		}
		if strings.Contains(strings.ToLower(e.Message), "throttled") {
			return true
		}
	}
	return false
}

func joinMessages(errs []ResponseError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}
