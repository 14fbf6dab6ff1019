package types

// Principal is the opaque identity of an authenticated caller.
type Principal string

// String returns the string representation
func (p Principal) String() string {
	return string(p)
}

// IsZero reports whether the principal is empty, i.e. anonymous
func (p Principal) IsZero() bool {
	return p == ""
}
