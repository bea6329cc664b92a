package registry

import "errors"

// ErrUnknownBinding is returned when a record's message_id has no
// registered binding (spec §7's UnknownBinding taxonomy entry). Per §7
// this is fatal to the dispatching process -- callers are expected to
// abort, not retry.
var ErrUnknownBinding = errors.New("registry: unknown binding")
