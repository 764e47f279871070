package wire

import "encoding/json"

// Envelope is the source→server frame of §6, identical whether it arrives as a
// WebSocket text frame or an HTTP POST body.
type Envelope struct {
	ID   string       `json:"id"`
	Data EnvelopeData `json:"data"`
}

type EnvelopeData struct {
	Route   Route           `json:"route"`
	Request json.RawMessage `json:"request"`
}

// Reply is the server→source frame, correlated to its Envelope by ID.
type Reply struct {
	ID       string          `json:"id"`
	Route    Route           `json:"route"`
	Response json.RawMessage `json:"response"`
}

// Ok is embedded anonymously by every successful route response so the "success" field
// sits alongside the route-specific fields once marshalled, matching the flattened union
// shape of §6 ({success: true, ...route-specific fields}).
type Ok struct {
	Success bool `json:"success"`
}

// Success is the Ok value every successful response embeds.
var Success = Ok{Success: true}

// ErrorResponse is the other half of the response union: {success: false, error: ...}.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Success: false, Error: ErrorString(err)}
}

// NewReply marshals a route-specific response (success or ErrorResponse) into a Reply.
func NewReply(id string, route Route, response any) (Reply, error) {
	payload, err := json.Marshal(response)
	if err != nil {
		return Reply{}, err
	}
	return Reply{ID: id, Route: route, Response: payload}, nil
}
