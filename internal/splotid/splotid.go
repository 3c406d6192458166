// Package splotid generates sortable identifiers (ULIDs). No package in
// this module calls it at present; scene child uids, for instance, are
// built from the parent uid and the scene id.
package splotid

import "github.com/oklog/ulid/v2"

// New returns a new lexically sortable identifier, adapted from the
// teacher's repeated ulid.Make().String() call sites into one helper.
func New() string {
	return ulid.Make().String()
}
