package remote

import (
	"encoding/json"
	"net/http"
	"regexp"
)

// Outcome classifies one pixel write.
type Outcome int

const (
	// Painted: the backend confirmed the pixel with painted == 1.
	Painted Outcome = iota + 1
	// ChallengeRequired: a verification challenge must be cleared first.
	ChallengeRequired
	// Rejected: the backend answered without confirming the paint. This
	// covers both "already that colour" and genuine refusals.
	Rejected
	// TransientError: transport failure or an unusable response.
	TransientError
)

func (o Outcome) String() string {
	switch o {
	case Painted:
		return "painted"
	case ChallengeRequired:
		return "challenge"
	case Rejected:
		return "rejected"
	case TransientError:
		return "transient"
	default:
		return "unknown"
	}
}

var challengePattern = regexp.MustCompile(`(?i)captcha|recaptcha|verify`)

// IsChallenge applies the challenge heuristic: 403 or 429, or challenge text
// anywhere in the body.
func IsChallenge(status int, body []byte) bool {
	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		return true
	}
	return challengePattern.Match(body)
}

type paintResponse struct {
	Painted any `json:"painted"`
}

// confirmed reports whether painted is numerically 1. Booleans and strings
// never confirm.
func (r paintResponse) confirmed() bool {
	n, ok := r.Painted.(float64)
	return ok && n == 1
}

// Classify maps a pixel write response to an Outcome in two stages: the
// status code first, then the body. Only a JSON body with painted == 1 is
// Painted.
func Classify(status int, body []byte) Outcome {
	if IsChallenge(status, body) {
		return ChallengeRequired
	}
	if status >= 500 {
		return TransientError
	}

	if !json.Valid(body) {
		if status >= 400 {
			return Rejected
		}
		return TransientError
	}
	// well-formed JSON of any shape is an answer; only a confirmed paint counts
	var pr paintResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return Rejected
	}
	if status >= 200 && status < 300 && pr.confirmed() {
		return Painted
	}
	return Rejected
}
