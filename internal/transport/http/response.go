package transporthttp

import (
	"encoding/json"
	"net/http"

	"github.com/rakunlabs/splot/internal/splotval"
)

func httpResponseJSON(w http.ResponseWriter, msg any, code int) {
	v, _ := json.Marshal(msg)
	httpResponseJSONByte(w, v, code)
}

func httpResponseJSONByte(w http.ResponseWriter, msg []byte, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(msg)
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// httpResponseError maps the closed splotval.Error taxonomy (spec §7) onto
// HTTP status codes and writes a JSON error body.
func httpResponseError(w http.ResponseWriter, err error) {
	kind := splotval.ErrorKind("Technology")
	if se, ok := err.(*splotval.Error); ok {
		kind = se.Kind
	}

	status := http.StatusInternalServerError
	switch kind {
	case splotval.ErrPropertyNotFound, splotval.ErrMethodNotFound, splotval.ErrUnknownResource:
		status = http.StatusNotFound
	case splotval.ErrPropertyReadOnly, splotval.ErrPropertyWriteOnly, splotval.ErrPropertyOperationUnsupported,
		splotval.ErrGroupsNotSupported, splotval.ErrTechnologyCannotHost:
		status = http.StatusMethodNotAllowed
	case splotval.ErrInvalidPropertyValue, splotval.ErrInvalidMethodArguments, splotval.ErrInvalidValue,
		splotval.ErrInvalidModifierList, splotval.ErrInvalidSection, splotval.ErrBadStateForPropertyValue,
		splotval.ErrRPNStackUnderflow, splotval.ErrRPNStackOverflow, splotval.ErrRPNUnknownVariable,
		splotval.ErrRPNSyntaxError:
		status = http.StatusBadRequest
	case splotval.ErrUnassociatedResource, splotval.ErrUnacceptableThing, splotval.ErrGroupNotAvailable:
		status = http.StatusConflict
	case splotval.ErrCorruptPersistentState, splotval.ErrTechnology:
		status = http.StatusInternalServerError
	}

	httpResponseJSON(w, errorResponse{Error: errorBody{Kind: string(kind), Message: err.Error()}}, status)
}
