package store

import (
	"sync"

	"github.com/peerline/peerline/src/profile"
)

// Store is the durable mirror of every profile this node has learned about,
// one independently addressable record per username. Records live under a
// namespace set to the logged-in identity, so different identities on the
// same machine do not share data.
//
// All mutating operations against the same username are serialized
// internally; concurrent read-modify-write cycles on one record cannot lose
// updates.
type Store interface {

	// SetNamespace switches the active record namespace. Called on login with
	// the session username.
	SetNamespace(owner string)

	// Get returns the record for username, or a NotFound error.
	Get(username string) (*profile.Profile, error)

	// Set overwrites the record for username, creating it if absent.
	Set(username string, p *profile.Profile) error

	// Delete removes the record for username.
	Delete(username string) error

	// Update runs a locked read-modify-write cycle on username's record. fn
	// receives the current record and returns whether it must be persisted.
	// A missing record is not synthesized: Update returns NotFound and fn is
	// not called.
	Update(username string, fn func(p *profile.Profile) bool) error

	// Usernames enumerates every record in the active namespace.
	Usernames() ([]string, error)

	// Close releases the underlying resources.
	Close() error
}

// userLocks hands out one mutex per username.
type userLocks struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (ul *userLocks) forUser(username string) *sync.Mutex {
	ul.Lock()
	defer ul.Unlock()

	l, ok := ul.locks[username]
	if !ok {
		l = &sync.Mutex{}
		ul.locks[username] = l
	}
	return l
}

// AddFollower records that follower follows username.
func AddFollower(s Store, username, follower string) error {
	return s.Update(username, func(p *profile.Profile) bool {
		p.AddFollower(follower)
		return true
	})
}

// AddFollowing records that username follows followed.
func AddFollowing(s Store, username, followed string) error {
	return s.Update(username, func(p *profile.Profile) bool {
		p.AddFollowing(followed)
		return true
	})
}

// RemoveFollower ...
func RemoveFollower(s Store, username, follower string) error {
	return s.Update(username, func(p *profile.Profile) bool {
		p.RemoveFollower(follower)
		return true
	})
}

// RemoveFollowing ...
func RemoveFollowing(s Store, username, followed string) error {
	return s.Update(username, func(p *profile.Profile) bool {
		p.RemoveFollowing(followed)
		return true
	})
}

// AppendPost appends post to username's record. It reports whether the post
// was new; gossip may deliver the same post more than once, and duplicates
// (same author, same timestamp) are dropped.
func AppendPost(s Store, username string, post profile.Post) (bool, error) {
	isNew := false
	err := s.Update(username, func(p *profile.Profile) bool {
		for _, existing := range p.Posts {
			if existing.Timestamp == post.Timestamp && existing.Username == post.Username {
				return false
			}
		}
		p.AppendPost(post)
		isNew = true
		return true
	})
	return isNew, err
}
