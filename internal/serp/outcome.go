package serp

import (
	"fmt"
	"strconv"
	"time"
)

// Status classifies how a lookup ended.
type Status string

const (
	StatusMatched        Status = "matched"
	StatusNotFound       Status = "not_found"
	StatusAuthError      Status = "auth_error"
	StatusRateLimited    Status = "rate_limited"
	StatusAPIError       Status = "api_error"
	StatusTransportError Status = "transport_error"
)

// Statuses lists every Status in report order.
func Statuses() []Status {
	return []Status{
		StatusMatched,
		StatusNotFound,
		StatusAuthError,
		StatusRateLimited,
		StatusAPIError,
		StatusTransportError,
	}
}

// IsError reports whether s means the lookup itself failed. NotFound is a
// valid negative answer, not an error.
func (s Status) IsError() bool {
	return s != StatusMatched && s != StatusNotFound
}

// Outcome is the terminal result of one Request. Which fields are meaningful
// depends on Status:
//
//	matched          Rank, URL
//	auth_error       Code, Message when a block page was served
//	rate_limited     Code (always 429)
//	api_error        Code, Message when a block page was served
//	transport_error  Message
type Outcome struct {
	Status  Status
	Rank    int
	URL     string
	Code    int
	Message string
	// Attempts is the number of HTTP requests sent, retries included.
	Attempts int
	Duration time.Duration
}

// Matched builds a successful outcome.
func Matched(rank int, url string) Outcome {
	return Outcome{Status: StatusMatched, Rank: rank, URL: url}
}

// NotFound builds an outcome for a domain absent from the results.
func NotFound() Outcome {
	return Outcome{Status: StatusNotFound}
}

// AuthError builds an outcome for rejected credentials.
func AuthError(code int) Outcome {
	return Outcome{Status: StatusAuthError, Code: code}
}

// RateLimited builds an outcome for an exhausted 429 retry budget.
func RateLimited() Outcome {
	return Outcome{Status: StatusRateLimited, Code: 429}
}

// APIError builds an outcome for any other non-200 response.
func APIError(code int) Outcome {
	return Outcome{Status: StatusAPIError, Code: code}
}

// TransportError builds an outcome for a request that produced no usable
// response. err must be non-nil.
func TransportError(err error) Outcome {
	return Outcome{Status: StatusTransportError, Message: err.Error()}
}

// Ranking renders the outcome the way it appears in the Ranking column:
// the rank number on a match and a short status text otherwise.
func (o Outcome) Ranking() string {
	return RankingText(o.Status, o.Rank, o.Code, o.Message)
}

// RankingText renders a ranking cell from stored outcome fields.
func RankingText(status Status, rank, code int, message string) string {
	switch status {
	case StatusMatched:
		return strconv.Itoa(rank)
	case StatusNotFound:
		return "Not in Top 100"
	case StatusAuthError:
		return fmt.Sprintf("Auth error (HTTP %d)", code)
	case StatusRateLimited:
		return "Rate limited (HTTP 429)"
	case StatusAPIError:
		return fmt.Sprintf("API error (HTTP %d)", code)
	case StatusTransportError:
		return "Request failed: " + message
	}
	return string(status)
}
