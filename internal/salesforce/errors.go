package salesforce

import "strings"

// UpstreamError reports a failed Salesforce API exchange. Message is safe
// to show to end users; Detail carries the raw upstream response body.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Message    string
	Detail     string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

const networkMessage = "The server is not responding. Please check your connection or try again later."

// classifyUpstream rewrites well-known Salesforce error codes into
// user-facing guidance. Anything unrecognised passes through verbatim so
// that org-specific validation messages stay visible.
func classifyUpstream(operation string, statusCode int, body string) *UpstreamError {
	message := strings.TrimSpace(body)
	switch {
	case strings.Contains(body, "INVALID_FIELD"):
		switch operation {
		case "read":
			message = "One or more fields in your query do not exist in Salesforce. Please check the field names."
		case "aggregate":
			message = "One or more fields in your aggregate query do not exist in Salesforce. Please check the field names."
		default:
			message = "One or more fields in your request do not exist in Salesforce. Please check the field names."
		}
	case strings.Contains(body, "NOT_FOUND"):
		message = "The requested object or resource was not found in Salesforce."
	case strings.Contains(body, "INVALID_TYPE"):
		if operation == "aggregate" {
			message = "One or more aggregate functions are not compatible with the specified field types. Please check your query."
		} else {
			message = "The requested object type is not valid in Salesforce."
		}
	case message == "":
		message = "An unexpected error occurred. Please try again."
	}
	return &UpstreamError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
		Detail:     body,
	}
}

func networkError(operation string) *UpstreamError {
	return &UpstreamError{
		Operation: operation,
		Message:   networkMessage,
	}
}
