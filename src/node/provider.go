package node

import (
	"time"

	cm "github.com/peerline/peerline/src/common"
	"github.com/peerline/peerline/src/profile"
)

// Provide advertises this node as a source for key and installs the
// responder that answers provider queries with this node's current best
// knowledge of key's profile.
func (n *PeerNode) Provide(key string) error {
	if err := n.sub.Provide(key); err != nil {
		return err
	}

	n.sub.RegisterFetchFunc(key, func() ([]byte, error) {
		p, err := n.localProfile(key)
		if err != nil {
			return nil, err
		}
		return p.Marshal()
	})

	return nil
}

// Unprovide withdraws the local responder for key. The advertisement itself
// cannot be retracted, so other nodes may keep listing this node as a stale
// provider; their queries will simply fail and move on.
func (n *PeerNode) Unprovide(key string) {
	n.sub.UnregisterFetchFunc(key)
}

// CollectInfo reconstructs key's profile from whoever currently holds it.
// Every advertised provider is queried in sequence and every successful
// response is accumulated, so that a single stale or malicious provider is
// outvoted in the merge rather than trusted blindly. With no providers, or
// when all of them fail, the local store is the fallback.
func (n *PeerNode) CollectInfo(key string) (*profile.Profile, error) {
	providers := n.sub.FindProviders(key)
	if len(providers) > n.conf.MaxProviders {
		providers = providers[:n.conf.MaxProviders]
	}

	if len(providers) > 0 {
		n.logger.WithFields(map[string]interface{}{
			"key":       key,
			"providers": providers,
		}).Debug("Querying providers")

		candidates := []*profile.Profile{}
		for _, peerID := range providers {
			p, err := n.queryProvider(peerID, key)
			if err != nil {
				n.logger.WithField("peer", peerID).WithError(err).Debug("Provider unreachable, trying next")
				continue
			}
			candidates = append(candidates, p)
		}

		if len(candidates) > 0 {
			return profile.Merge(candidates), nil
		}
	}

	return n.localProfile(key)
}

// queryProvider fetches key's profile from one specific peer, bounded by the
// configured fetch timeout.
func (n *PeerNode) queryProvider(peerID, key string) (*profile.Profile, error) {
	type fetchResult struct {
		data []byte
		err  error
	}

	resCh := make(chan fetchResult, 1)
	go func() {
		data, err := n.sub.Fetch(peerID, key)
		resCh <- fetchResult{data: data, err: err}
	}()

	var data []byte
	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, cm.WrapNodeErr(cm.ProviderUnreachable, key, res.err)
		}
		data = res.data
	case <-time.After(n.conf.FetchTimeout):
		return nil, cm.NewNodeErr(cm.ProviderUnreachable, key)
	}

	p := profile.NewProfile()
	if err := p.Unmarshal(data); err != nil {
		return nil, cm.WrapNodeErr(cm.ProviderUnreachable, key, err)
	}

	return p, nil
}

// localProfile returns this node's own best knowledge of key: the in-memory
// session profile when key is the logged-in user, the stored record
// otherwise.
func (n *PeerNode) localProfile(key string) (*profile.Profile, error) {
	n.sessionLock.Lock()
	if n.getState() == LoggedIn && key == n.username {
		defer n.sessionLock.Unlock()
		return copyProfile(n.profile), nil
	}
	n.sessionLock.Unlock()

	return n.store.Get(key)
}

// copyProfile deep-copies a profile so callers can hand it out without
// exposing session state to concurrent mutation.
func copyProfile(p *profile.Profile) *profile.Profile {
	res := profile.NewProfile()
	for follower := range p.Followers {
		res.Followers[follower] = true
	}
	for following := range p.Following {
		res.Following[following] = true
	}
	res.Posts = append(res.Posts, p.Posts...)
	return res
}
