package transport

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// defaultChallengeMarkers identify anti-bot challenge pages served with a
// 403 status.
var defaultChallengeMarkers = []string{
	"cf-chl",
	"challenge-platform",
	"captcha",
	"are you a robot",
	"px-captcha",
}

// challengeHeader is set by some edge providers on challenge responses.
const challengeHeader = "Cf-Mitigated"

// classifyResponse maps a non-2xx response to a fetch error. It returns nil
// for successful responses.
func (c *Client) classifyResponse(resp *http.Response, body []byte) *model.FetchError {
	status := resp.StatusCode
	if status >= 200 && status < 300 {
		return nil
	}

	cause := errors.New(http.StatusText(status))
	var fe *model.FetchError
	switch {
	case status == http.StatusTooManyRequests:
		fe = model.NewTransientError(status, true, cause)
	case status == http.StatusForbidden && c.isChallenge(resp, body):
		fe = model.NewTransientError(status, true, errors.New("challenge page"))
	case status == http.StatusRequestTimeout, status >= 500:
		fe = model.NewTransientError(status, false, cause)
	default:
		fe = model.NewPermanentError(status, cause)
	}
	fe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	return fe
}

// isChallenge reports whether a 403 response is an anti-bot challenge
// rather than a genuine refusal.
func (c *Client) isChallenge(resp *http.Response, body []byte) bool {
	if strings.EqualFold(resp.Header.Get(challengeHeader), "challenge") {
		return true
	}
	lower := bytes.ToLower(body)
	for _, m := range c.markers {
		if m != "" && bytes.Contains(lower, []byte(strings.ToLower(m))) {
			return true
		}
	}
	return false
}

// classifyTransportError maps a failure that produced no response.
// Timeouts are transient; failing to reach the source (or the proxy) means
// the upstream is unavailable.
func classifyTransportError(err error) *model.FetchError {
	var pe *proxyDialError
	if errors.As(err, &pe) {
		return model.NewUnavailableError(err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return model.NewTransientError(0, false, err)
	}

	var oe *net.OpError
	if errors.As(err, &oe) && oe.Op == "dial" {
		return model.NewUnavailableError(err)
	}

	var de *net.DNSError
	if errors.As(err, &de) && de.IsNotFound {
		return model.NewUnavailableError(err)
	}

	return model.NewTransientError(0, false, err)
}

// parseRetryAfter reads a Retry-After header given either as delay seconds
// or as an HTTP date. It returns 0 when the header is absent or invalid.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
