package algod

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	dErrors "algodid/pkg/domain-errors"
	"algodid/pkg/platform/sentinel"
)

// The SDK reports non-2xx responses as "HTTP <status>: <body>".
var statusPattern = regexp.MustCompile(`HTTP (\d{3})`)

// statusOf extracts the HTTP status from an SDK error, or 0 when the
// request never got a response.
func statusOf(err error) int {
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

func isTransport(err error) bool {
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr)
}

// classifyRead maps a failed read into the ledger error contract.
func classifyRead(err error, what string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	status := statusOf(err)
	switch {
	case status == 404:
		return fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	case status == 0 && isTransport(err), status >= 500:
		return dErrors.Wrap(err, dErrors.CodeNetwork, what)
	case status == 0:
		return dErrors.Wrap(err, dErrors.CodeInternal, what)
	default:
		return dErrors.Wrap(err, dErrors.CodeRejected, what)
	}
}

// classifySubmit maps a refused submission. The node's diagnostic text is
// kept as the cause.
func classifySubmit(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeNetwork, "submit interrupted; the group may still be accepted")
	}
	status := statusOf(err)
	if status == 0 || status >= 500 {
		return dErrors.Wrap(err, dErrors.CodeNetwork, "submit transaction group")
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "below min"):
		return dErrors.Wrap(err, dErrors.CodeInsufficientBalance, "application balance would fall below its minimum")
	case strings.Contains(msg, "invalid Box reference"),
		strings.Contains(msg, "box read budget"),
		strings.Contains(msg, "box write budget"):
		return dErrors.Wrap(err, dErrors.CodeBoxReferenceMissing, "box reference or I/O budget missing")
	default:
		return dErrors.Wrap(err, dErrors.CodeRejected, "node rejected transaction group")
	}
}
