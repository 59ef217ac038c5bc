// Package dnswire implements a minimal DNS message codec: enough header,
// question, and A/AAAA record handling to answer simple queries. It is the
// wire format for the example/dnsecho Handler, not a framework component.
package dnswire

import "errors"

// ErrMalformed is the sentinel wrapped by every parse error.
var ErrMalformed = errors.New("dnswire: malformed message")
