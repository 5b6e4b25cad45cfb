package api

import (
	"strconv"

	"github.com/danielgtaylor/huma/v2"
)

// EnvelopeVersion is the response envelope format version sent as "v".
const EnvelopeVersion = 1

// APIEnvelope wraps every JSON response body.
type APIEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int       `json:"v"`
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// EnvelopeTransformer is a huma transformer that wraps response bodies in an
// APIEnvelope. Errors become {"success":false,"error":{code,message,details}}.
// Raw byte bodies such as signature images pass through untouched.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if _, ok := v.([]byte); ok {
		return v, nil
	}
	if env, ok := v.(APIEnvelope); ok {
		return env, nil
	}

	code, _ := strconv.Atoi(status)

	switch body := v.(type) {
	case *APIError:
		return APIEnvelope{Version: EnvelopeVersion, Success: false, Error: body}, nil
	case error:
		return APIEnvelope{
			Version: EnvelopeVersion,
			Success: false,
			Error:   &APIError{status: code, Code: statusToCode(code), Message: body.Error()},
		}, nil
	}

	if code >= 400 {
		return APIEnvelope{Version: EnvelopeVersion, Success: false, Data: v}, nil
	}
	return APIEnvelope{Version: EnvelopeVersion, Success: true, Data: v}, nil
}
