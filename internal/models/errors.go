package models

import "errors"

// ErrDataIntegrity marks a violated structural invariant: a duplicate
// (date, datatype) pair inside one fetch batch, or an out-of-order batch
// handed to the merger. It is never absorbed; the caller's update fails.
var ErrDataIntegrity = errors.New("data integrity violation")
