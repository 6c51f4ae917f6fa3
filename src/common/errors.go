package common

import "fmt"

// ErrType enumerates the failure classes surfaced by the peerline core.
type ErrType uint32

const (
	// NotFound means a username or content key is definitively absent from
	// the directory or the local store.
	NotFound ErrType = iota
	// NoPeersAvailable means the substrate has nobody to ask yet. It is
	// transient and is normally swallowed rather than surfaced.
	NoPeersAvailable
	// ProviderUnreachable means one specific provider failed to answer.
	ProviderUnreachable
	// UserUnreachable means no provider nor the local store could produce a
	// profile for the requested user.
	UserUnreachable
	// StorageIO is a local disk failure.
	StorageIO
	// AlreadyLoggedIn ...
	AlreadyLoggedIn
	// NotLoggedIn ...
	NotLoggedIn
	// InvalidCredentials ...
	InvalidCredentials
	// SelfFollowRejected means a user tried to follow themselves.
	SelfFollowRejected
	// AlreadyFollowing ...
	AlreadyFollowing
	// NotFollowing ...
	NotFollowing
)

// NodeErr is the typed error returned by core operations. Key identifies the
// username or content key the operation was acting on.
type NodeErr struct {
	errType ErrType
	key     string
	cause   error
}

// NewNodeErr ...
func NewNodeErr(errType ErrType, key string) NodeErr {
	return NodeErr{errType: errType, key: key}
}

// WrapNodeErr attaches an underlying cause to a NodeErr.
func WrapNodeErr(errType ErrType, key string, cause error) NodeErr {
	return NodeErr{errType: errType, key: key, cause: cause}
}

// Error ...
func (e NodeErr) Error() string {
	m := ""
	switch e.errType {
	case NotFound:
		m = "Not Found"
	case NoPeersAvailable:
		m = "No Peers Available"
	case ProviderUnreachable:
		m = "Provider Unreachable"
	case UserUnreachable:
		m = "User Unreachable"
	case StorageIO:
		m = "Storage IO"
	case AlreadyLoggedIn:
		m = "Already Logged In"
	case NotLoggedIn:
		m = "Not Logged In"
	case InvalidCredentials:
		m = "Invalid Credentials"
	case SelfFollowRejected:
		m = "Self Follow Rejected"
	case AlreadyFollowing:
		m = "Already Following"
	case NotFollowing:
		m = "Not Following"
	}

	if e.cause != nil {
		return fmt.Sprintf("%s, %s: %v", e.key, m, e.cause)
	}

	return fmt.Sprintf("%s, %s", e.key, m)
}

// Is checks that an error is a NodeErr and that its code matches the provided
// ErrType.
func Is(err error, t ErrType) bool {
	nodeErr, ok := err.(NodeErr)
	return ok && nodeErr.errType == t
}
