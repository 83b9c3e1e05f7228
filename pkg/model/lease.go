package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LeaseSeparator delimits the parts of a lease token at the persistence boundary.
const LeaseSeparator = "/"

// Lease is an exclusive write claim on a model. The zero value means unleased.
//
// Owner is the authenticated user, Session the browser session and Qualifier the
// tab (or any finer-grained lock holder) inside that session. A parsed lease
// remembers how many parts its token had, so "alice/s1/" keeps its empty
// qualifier.
type Lease struct {
	Owner     string
	Session   string
	Qualifier string

	parts int
}

// ParseLease decodes the persisted owner/session/qualifier token.
// Everything after the second separator belongs to the qualifier.
func ParseLease(token string) Lease {
	if token == "" {
		return Lease{}
	}
	parts := strings.SplitN(token, LeaseSeparator, 3)
	l := Lease{Owner: parts[0], parts: len(parts)}
	if len(parts) > 1 {
		l.Session = parts[1]
	}
	if len(parts) > 2 {
		l.Qualifier = parts[2]
	}
	return l
}

// partCount is the number of token parts, at least as many as the set fields need.
func (l Lease) partCount() int {
	n := l.parts
	switch {
	case l.Qualifier != "":
		n = max(n, 3)
	case l.Session != "":
		n = max(n, 2)
	case l.Owner != "":
		n = max(n, 1)
	}
	return n
}

// NewLease builds the requester lease for a user and a "session/tab" identifier.
func NewLease(owner, sessionTab string) Lease {
	return ParseLease(owner + LeaseSeparator + sessionTab)
}

// IsZero reports whether the lease is empty.
func (l Lease) IsZero() bool {
	return l.String() == ""
}

// State returns the checkout state the lease represents.
func (l Lease) State() LeaseState {
	if l.IsZero() {
		return LeaseStateUnleased
	}
	return LeaseStateLeased
}

// String renders the persisted token; ParseLease(l.String()) reproduces l.
func (l Lease) String() string {
	switch l.partCount() {
	case 0:
		return ""
	case 1:
		return l.Owner
	case 2:
		return l.Owner + LeaseSeparator + l.Session
	default:
		return l.Owner + LeaseSeparator + l.Session + LeaseSeparator + l.Qualifier
	}
}

// Equal reports whether both leases name the same holder.
func (l Lease) Equal(other Lease) bool {
	return l.String() == other.String()
}

// HeldBySession reports whether the lease was taken by some tab of the given
// owner's session, i.e. its token starts with "owner/session/".
func (l Lease) HeldBySession(owner, session string) bool {
	return l.partCount() == 3 && l.Owner == owner && l.Session == session
}

func (l Lease) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts a token string. null and false are read as unleased,
// matching records written by older importers.
func (l *Lease) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "null", "false":
		*l = Lease{}
		return nil
	}
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("lease must be a string: %w", err)
	}
	*l = ParseLease(token)
	return nil
}
