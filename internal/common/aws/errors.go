package aws

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

// IsPermanent reports whether an AWS error will fail again on retry:
// rejected messages, bad parameters and auth failures.
func IsPermanent(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	switch {
	case strings.Contains(code, "Throttl"), strings.Contains(code, "Internal"), strings.Contains(code, "Unavailable"):
		return false
	case code == "MessageRejected",
		code == "MailFromDomainNotVerified",
		code == "ConfigurationSetDoesNotExist",
		code == "AccountSendingPaused",
		code == "OptedOut",
		strings.HasPrefix(code, "InvalidParameter"),
		code == "AuthorizationError",
		code == "AccessDenied",
		code == "InvalidClientTokenId":
		return true
	default:
		return apiErr.ErrorFault() == smithy.FaultClient
	}
}
