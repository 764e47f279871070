package peer

import "errors"

// ErrDead is returned by Connection.Send/SendRaw when the peer's outbound buffer is
// saturated or its socket is already closing (§5 back-pressure). Callers doing fan-out
// treat it like a missing peer rather than a transport failure: the peer is garbage and
// its close handler will reap membership, but the aggregate request must not fail (§7).
var ErrDead = errors.New("peer: send buffer saturated, connection considered dead")
