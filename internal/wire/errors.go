package wire

import "errors"

// Error taxonomy of §7. The string form of each is what crosses the wire verbatim in a
// {success:false, error:<string>} response, so these messages are part of the contract
// and must not be reworded.
var (
	ErrInvalidConnection    = errors.New("Invalid connection")
	ErrInvalidRequest       = errors.New("Invalid request")
	ErrUnknown              = errors.New("Unknown error")
	ErrPeerNotFound         = errors.New("Peer not found")
	ErrPeerNotAuthenticated = errors.New("Peer not authenticated")
	ErrNotSubscribed        = errors.New("Peer is not subscribed to channel")
	ErrChannelNotFound      = errors.New("Channel not found")
	ErrRecipientNotFound    = errors.New("Recipient not found")
)

// wireErrors lists every sentinel eligible to be surfaced verbatim as a response error
// string. Anything else reaching the HTTP/WS front door is reported as ErrUnknown; the
// original error is not logged on that path.
var wireErrors = []error{
	ErrInvalidConnection,
	ErrInvalidRequest,
	ErrUnknown,
	ErrPeerNotFound,
	ErrPeerNotAuthenticated,
	ErrNotSubscribed,
	ErrChannelNotFound,
	ErrRecipientNotFound,
}

// ErrorString maps err onto its wire representation, collapsing anything unrecognized
// (including wrapped store/driver errors) to ErrUnknown's text.
func ErrorString(err error) string {
	for _, candidate := range wireErrors {
		if errors.Is(err, candidate) {
			return candidate.Error()
		}
	}
	return ErrUnknown.Error()
}
