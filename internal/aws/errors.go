package aws

import (
	"errors"

	"github.com/aws/smithy-go"
)

// codes that will not succeed on a retry
var permanentCodes = map[string]bool{
	"ValidationException":         true,
	"ResourceNotFoundException":   true,
	"AccessDeniedException":       true,
	"UnrecognizedClientException": true,
}

// IsPermanent reports whether err is an AWS API error that retrying cannot fix,
// such as a missing table or a malformed request.
func IsPermanent(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && permanentCodes[apiErr.ErrorCode()]
}
