package wire

import "github.com/o2ensemble/o2/pkg/o2/types"

// errInvalidMsg is returned on any out-of-bounds read while decoding, so a
// malformed wire message closes the offending socket instead of corrupting
// memory.
var errInvalidMsg = types.ErrInvalidMsg
