package api

import (
	"io"
	"net/http"

	"github.com/crmchat/crmchat/internal/descriptor"
)

// decodeDescriptor reads a descriptor body and forces the operation the
// route implies, so a stray operation tag in the payload cannot reroute
// the request.
func decodeDescriptor(r *http.Request, op descriptor.Operation) (descriptor.Descriptor, bool, string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return descriptor.Descriptor{}, false, "failed to read request body"
	}
	desc, err := descriptor.Decode(body)
	if err != nil {
		return descriptor.Descriptor{}, false, "request body must be a valid operation descriptor"
	}
	desc.Operation = op
	if err := desc.Validate(); err != nil {
		return descriptor.Descriptor{}, false, err.Error()
	}
	return desc, true, ""
}

func handleSalesforceQuery(deps Dependencies, op descriptor.Operation, w http.ResponseWriter, r *http.Request) {
	if deps.Dispatcher == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SALESFORCE_NOT_CONFIGURED", "salesforce dispatcher is not configured", false, nil)
		return
	}
	desc, ok, reason := decodeDescriptor(r, op)
	if !ok {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", reason, false, nil)
		return
	}

	var result any
	var err error
	if op == descriptor.OperationAggregate {
		result, err = deps.Dispatcher.Aggregate(r.Context(), desc)
	} else {
		result, err = deps.Dispatcher.Read(r.Context(), desc)
	}
	if err != nil {
		writeOperationError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleSalesforceWrite(deps Dependencies, op descriptor.Operation, w http.ResponseWriter, r *http.Request) {
	if deps.Dispatcher == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SALESFORCE_NOT_CONFIGURED", "salesforce dispatcher is not configured", false, nil)
		return
	}
	desc, ok, reason := decodeDescriptor(r, op)
	if !ok {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", reason, false, nil)
		return
	}

	var run func() (any, error)
	switch op {
	case descriptor.OperationCreate:
		run = func() (any, error) { return deps.Dispatcher.Create(r.Context(), desc) }
	case descriptor.OperationUpdate:
		run = func() (any, error) { return deps.Dispatcher.Update(r.Context(), desc) }
	default:
		run = func() (any, error) { return deps.Dispatcher.Delete(r.Context(), desc) }
	}

	result, err := run()
	if err != nil {
		writeOperationError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
