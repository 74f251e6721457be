package enums

// SessionFactKind names a session lifecycle fact already folded into the daily rollup.
type SessionFactKind string

const (
	SessionFactStarted   SessionFactKind = "started"
	SessionFactCompleted SessionFactKind = "completed"
)

// String implements fmt.Stringer.
func (s SessionFactKind) String() string {
	return string(s)
}
