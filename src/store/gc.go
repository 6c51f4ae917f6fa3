package store

import (
	"sort"
	"time"

	cm "github.com/peerline/peerline/src/common"
	"github.com/peerline/peerline/src/profile"
	"github.com/sirupsen/logrus"
)

// Node-local garbage collection policy. Deliberately constants rather than
// configuration: every node prunes the same way.
const (
	// PostRetention is how long a post stays in a stored record.
	PostRetention = 24 * time.Hour

	// MaxPosts caps the number of posts kept per record after age pruning.
	MaxPosts = 100

	// SweepInterval is the period of the background sweep while a session is
	// active.
	SweepInterval = 1 * time.Hour
)

// GC periodically prunes every stored record's post list by age and by
// count. One GC instance runs at most one sweep at a time.
type GC struct {
	store  Store
	logger *logrus.Entry
}

// NewGC ...
func NewGC(s Store, logger *logrus.Entry) *GC {
	return &GC{
		store:  s,
		logger: logger.WithField("component", "gc"),
	}
}

// Run sweeps on a fixed interval until stopCh is closed. Sweeps are
// sequential; a tick that fires during a sweep waits for it.
func (g *GC) Run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Sweep()
		case <-stopCh:
			return
		}
	}
}

// Sweep applies the pruning policy to every record in the active namespace.
// A record that cannot be read is logged and skipped.
func (g *GC) Sweep() {
	usernames, err := g.store.Usernames()
	if err != nil {
		g.logger.WithError(err).Error("Listing records for sweep")
		return
	}

	for _, username := range usernames {
		if err := g.SweepUser(username); err != nil {
			g.logger.WithField("username", username).WithError(err).Error("Sweeping record")
		}
	}
}

// SweepUser prunes a single record: drop posts older than PostRetention,
// then drop the oldest posts over MaxPosts. The record is persisted only if
// something was actually removed.
func (g *GC) SweepUser(username string) error {
	return g.store.Update(username, func(p *profile.Profile) bool {
		pruned := Prune(p.Posts, time.Now())
		if len(pruned) == len(p.Posts) {
			return false
		}
		p.Posts = pruned
		return true
	})
}

// Prune returns posts sorted oldest-first with the age and count bounds
// enforced relative to now.
func Prune(posts []profile.Post, now time.Time) []profile.Post {
	sorted := make([]profile.Post, len(posts))
	copy(sorted, posts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	// The list is oldest-first, so scanning stops at the first post inside
	// the retention window.
	cutoff := now.Add(-PostRetention).UnixNano() / int64(time.Millisecond)
	firstKept := len(sorted)
	for i, post := range sorted {
		if post.Timestamp >= cutoff {
			firstKept = i
			break
		}
	}
	sorted = sorted[firstKept:]

	if len(sorted) > MaxPosts {
		sorted = sorted[len(sorted)-MaxPosts:]
	}

	return sorted
}

// IsNotFound reports whether an error from the store marks a missing record.
func IsNotFound(err error) bool {
	return cm.Is(err, cm.NotFound)
}
