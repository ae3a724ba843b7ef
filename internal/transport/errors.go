package transport

import "errors"

// Proxy configuration errors.
var (
	// ErrInvalidProxyAddress is returned when the proxy address is not in
	// "host:port" form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// could be established.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrInvalidBaseURL is returned when the source base URL is not an
	// absolute http or https URL.
	ErrInvalidBaseURL = errors.New("invalid base URL: expected absolute http(s) URL")
)

// proxyDialError marks a failure to reach a target through the proxy.
type proxyDialError struct {
	addr string
	err  error
}

func (e *proxyDialError) Error() string {
	return "dial " + e.addr + " via proxy: " + e.err.Error()
}

func (e *proxyDialError) Unwrap() error {
	return e.err
}
