package cloudapi

// Gateway error codes carried over from the upstream messaging provider.
const (
	// Transient: the same request may succeed later.
	codeRateLimitHit   = "130"
	codeRateLimitUsage = "80007"

	// Terminal: the request itself is unsendable.
	codeOutsideWindow   = "132015"
	codeWindowExpired   = "132016"
	codeRecipientBlock  = "131031"
	codeInvalidTemplate = "132001"
)

var retryableCodes = map[string]bool{
	codeRateLimitHit:   true,
	codeRateLimitUsage: true,
}

// codeRetryable classifies a gateway error code. Codes not in the
// retryable set are permanent: an unrecognized rejection means the
// request is unsendable, and retrying it burns budget for nothing.
func codeRetryable(code string) bool {
	return retryableCodes[code]
}
