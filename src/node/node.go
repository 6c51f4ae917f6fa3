package node

import (
	"sort"
	"sync"
	"time"

	cm "github.com/peerline/peerline/src/common"
	"github.com/peerline/peerline/src/config"
	"github.com/peerline/peerline/src/directory"
	"github.com/peerline/peerline/src/profile"
	"github.com/peerline/peerline/src/store"
	"github.com/peerline/peerline/src/substrate"
	"github.com/sirupsen/logrus"
)

// LiveListener receives newly-arrived posts from followed users, typically
// to forward them over SSE. At most one listener is active at a time.
type LiveListener func(post profile.Post)

//PeerNode is one participant in the peer-to-peer social network. It owns the
//session (username and in-memory profile), keeps the persistent profile
//store in sync with the follow-graph gossip, and reconstructs followed
//users' profiles from whichever peers currently hold them.
type PeerNode struct {
	state

	conf   *config.Config
	logger *logrus.Entry

	sub   substrate.Substrate
	dir   *directory.Client
	store store.Store
	gc    *store.GC

	sessionLock sync.Mutex
	username    string
	profile     *profile.Profile

	listenerLock sync.Mutex
	listener     LiveListener

	gcStopCh chan struct{}
}

//NewPeerNode is a factory method that returns a PeerNode instance
func NewPeerNode(conf *config.Config,
	sub substrate.Substrate,
	dir *directory.Client,
	st store.Store,
) *PeerNode {
	logger := conf.Logger().WithField("this_id", sub.LocalID())

	node := PeerNode{
		conf:   conf,
		logger: logger,
		sub:    sub,
		dir:    dir,
		store:  st,
		gc:     store.NewGC(st, logger),
	}

	return &node
}

//RunAsync calls Run as a separate thread
func (n *PeerNode) RunAsync() {
	go n.Run()
}

//Run drains the substrate's inbound gossip stream and dispatches every event
//through the topic router. It returns when the substrate closes.
func (n *PeerNode) Run() {
	for evt := range n.sub.Events() {
		n.handleEvent(evt)
	}
}

//Shutdown shuts down the node
func (n *PeerNode) Shutdown() {
	if n.getState() != Shutdown {
		n.logger.Debug("Shutdown")

		if n.getState() == LoggedIn {
			if err := n.Logout(); err != nil {
				n.logger.WithError(err).Error("Logout during shutdown")
			}
		}

		n.setState(Shutdown)

		//wait for background collects before closing their dependencies
		n.waitRoutines()

		n.sub.Close()
		n.store.Close()
	}
}

/*******************************************************************************
Session lifecycle
*******************************************************************************/

// Register publishes a new account: the password hash is placed in the
// shared directory under the username's key. The caller is expected to have
// already checked that the username is free.
func (n *PeerNode) Register(username, passwordHash string) error {
	n.logger.WithField("username", username).Debug("Register")

	return n.dir.RegisterUser(username, passwordHash)
}

// Login opens the node's single session. The account's profile is collected
// from current providers, or starts empty if nobody has it; an account that
// never posted from another node is indistinguishable from a fresh one, and
// that is fine. Followed users' profiles are refreshed in the background.
func (n *PeerNode) Login(username, passwordHash string) error {
	if n.getState() != LoggedOut {
		return cm.NewNodeErr(cm.AlreadyLoggedIn, username)
	}

	// Re-publish the password hash so nodes that joined after registration
	// also replicate it.
	if err := n.dir.RegisterUser(username, passwordHash); err != nil {
		return err
	}

	n.store.SetNamespace(username)

	p, err := n.CollectInfo(username)
	if err != nil {
		n.logger.WithField("username", username).Debug("Account info not found, starting fresh")
		p = profile.NewProfile()
	} else {
		n.logger.WithFields(logrus.Fields{
			"username":  username,
			"followers": len(p.Followers),
			"following": len(p.Following),
			"posts":     len(p.Posts),
		}).Debug("Recovered account info")
	}

	n.sessionLock.Lock()
	n.username = username
	n.profile = p
	n.sessionLock.Unlock()

	n.setState(LoggedIn)

	n.sub.Subscribe(ControlTopic(username, WasFollowed))
	n.sub.Subscribe(ControlTopic(username, WasUnfollowed))

	if err := n.Provide(username); err != nil {
		n.logger.WithError(err).Error("Providing own profile")
	}

	if err := n.store.Set(username, p); err != nil {
		n.logger.WithError(err).Error("Persisting own profile")
	}

	n.gcStopCh = make(chan struct{})
	go n.gc.Run(n.gcStopCh)

	// Refresh every followed user in the background. Login does not wait for
	// this fan-out; failures are logged and dropped.
	for followed := range p.Following {
		followed := followed
		n.goFunc(func() {
			n.refreshFollowed(followed)
		})
	}

	return nil
}

// refreshFollowed re-collects one followed user's profile, persists it,
// advertises this node as a provider for it, and subscribes to its topics.
func (n *PeerNode) refreshFollowed(username string) {
	p, err := n.CollectInfo(username)
	if err != nil {
		n.logger.WithField("username", username).WithError(err).Debug("Cannot refresh followed user")
		return
	}

	// the session may have ended while the collect was in flight
	if n.getState() != LoggedIn {
		return
	}

	if err := n.store.Set(username, p); err != nil {
		n.logger.WithField("username", username).WithError(err).Error("Persisting followed user")
		return
	}

	if err := n.Provide(username); err != nil {
		n.logger.WithField("username", username).WithError(err).Error("Providing followed user")
	}

	for _, topic := range userTopics(username) {
		n.sub.Subscribe(topic)
	}
}

// Logout closes the session. Every topic except the substrate's own
// discovery channel is dropped; the node keeps running unauthenticated.
func (n *PeerNode) Logout() error {
	if n.getState() != LoggedIn {
		return cm.NewNodeErr(cm.NotLoggedIn, "")
	}

	for _, topic := range n.sub.Topics() {
		if topic != substrate.DiscoveryTopic {
			n.sub.Unsubscribe(topic)
		}
	}

	close(n.gcStopCh)

	n.ClearLiveListener()

	n.sessionLock.Lock()
	n.username = ""
	n.profile = nil
	n.sessionLock.Unlock()

	n.store.SetNamespace("")

	n.setState(LoggedOut)

	return nil
}

// IsLoggedIn ...
func (n *PeerNode) IsLoggedIn() bool {
	return n.getState() == LoggedIn
}

// Username returns the session username, or "" when logged out.
func (n *PeerNode) Username() string {
	n.sessionLock.Lock()
	defer n.sessionLock.Unlock()

	return n.username
}

/*******************************************************************************
Follow graph
*******************************************************************************/

// Follow adds target to the session user's following set, caches target's
// profile locally, starts providing it, subscribes to target's topics, and
// announces the new edge on the gossip channels. The sequence is
// best-effort: a failure after the initial collect does not roll back the
// preceding steps.
func (n *PeerNode) Follow(target string) error {
	if n.getState() != LoggedIn {
		return cm.NewNodeErr(cm.NotLoggedIn, target)
	}

	n.sessionLock.Lock()
	username := n.username
	alreadyFollowing := n.profile.HasFollowing(target)
	n.sessionLock.Unlock()

	if target == username {
		return cm.NewNodeErr(cm.SelfFollowRejected, target)
	}
	if alreadyFollowing {
		return cm.NewNodeErr(cm.AlreadyFollowing, target)
	}

	collected, err := n.CollectInfo(target)
	if err != nil {
		return cm.WrapNodeErr(cm.UserUnreachable, target, err)
	}

	n.sessionLock.Lock()
	n.profile.AddFollowing(target)
	own := copyProfile(n.profile)
	n.sessionLock.Unlock()

	if err := n.store.Set(username, own); err != nil {
		n.logger.WithError(err).Error("Persisting own profile")
	}

	// Record the new edge on the cached copy right away instead of waiting
	// for our own gossip to come back around.
	collected.AddFollower(username)
	if err := n.store.Set(target, collected); err != nil {
		n.logger.WithError(err).Error("Persisting followed profile")
	}

	if err := n.Provide(target); err != nil {
		n.logger.WithError(err).Error("Providing followed profile")
	}

	for _, topic := range userTopics(target) {
		n.sub.Subscribe(topic)
	}

	if err := n.sub.Publish(ControlTopic(target, WasFollowed), []byte(username)); err != nil {
		n.logger.WithError(err).Error("Publishing wasFollowed")
	}
	if err := n.sub.Publish(ControlTopic(username, Followed), []byte(target)); err != nil {
		n.logger.WithError(err).Error("Publishing followed")
	}

	n.logger.WithFields(logrus.Fields{
		"username": username,
		"target":   target,
	}).Debug("Follow")

	return nil
}

// Unfollow removes target from the session user's following set, drops
// target's topics and local cache, and announces the removed edge.
func (n *PeerNode) Unfollow(target string) error {
	if n.getState() != LoggedIn {
		return cm.NewNodeErr(cm.NotLoggedIn, target)
	}

	n.sessionLock.Lock()
	username := n.username
	following := n.profile.HasFollowing(target)
	n.sessionLock.Unlock()

	if !following {
		return cm.NewNodeErr(cm.NotFollowing, target)
	}

	for _, topic := range userTopics(target) {
		n.sub.Unsubscribe(topic)
	}

	n.Unprovide(target)

	n.sessionLock.Lock()
	n.profile.RemoveFollowing(target)
	own := copyProfile(n.profile)
	n.sessionLock.Unlock()

	if err := n.store.Set(username, own); err != nil {
		n.logger.WithError(err).Error("Persisting own profile")
	}

	if err := n.sub.Publish(ControlTopic(target, WasUnfollowed), []byte(username)); err != nil {
		n.logger.WithError(err).Error("Publishing wasUnfollowed")
	}
	if err := n.sub.Publish(ControlTopic(username, Unfollowed), []byte(target)); err != nil {
		n.logger.WithError(err).Error("Publishing unfollowed")
	}

	// The cached record is no longer needed once unfollowed.
	if err := n.store.Delete(target); err != nil {
		n.logger.WithError(err).Error("Deleting unfollowed record")
	}

	n.logger.WithFields(logrus.Fields{
		"username": username,
		"target":   target,
	}).Debug("Unfollow")

	return nil
}

/*******************************************************************************
Posting and derived views
*******************************************************************************/

// Post appends a new post to the session user's profile, persists it, and
// publishes it on the user's post stream.
func (n *PeerNode) Post(text string) (*profile.Post, error) {
	if n.getState() != LoggedIn {
		return nil, cm.NewNodeErr(cm.NotLoggedIn, "")
	}

	n.sessionLock.Lock()
	post := profile.Post{
		Username:  n.username,
		Text:      text,
		Timestamp: time.Now().UnixNano() / int64(time.Millisecond),
	}
	n.profile.AppendPost(post)
	if len(n.profile.Posts) > store.MaxPosts {
		n.profile.Posts = store.Prune(n.profile.Posts, time.Now())
	}
	username := n.username
	own := copyProfile(n.profile)
	n.sessionLock.Unlock()

	if err := n.store.Set(username, own); err != nil {
		n.logger.WithError(err).Error("Persisting own profile")
	}

	raw, err := post.Marshal()
	if err != nil {
		return nil, err
	}
	if err := n.sub.Publish(PostTopic(username), raw); err != nil {
		n.logger.WithError(err).Error("Publishing post")
	}

	return &post, nil
}

// GetInfo returns a user's profile. The session user's own profile is served
// from memory; anyone else's comes from the local store.
func (n *PeerNode) GetInfo(username string) (*profile.Profile, error) {
	n.sessionLock.Lock()
	if n.getState() == LoggedIn && username == n.username {
		defer n.sessionLock.Unlock()
		return copyProfile(n.profile), nil
	}
	n.sessionLock.Unlock()

	p, err := n.store.Get(username)
	if err != nil {
		n.logger.WithField("username", username).WithError(err).Debug("Cannot read user record")
		return nil, err
	}

	return p, nil
}

// Timeline concatenates the posts of every locally cached record, the
// session user's included, newest first.
func (n *PeerNode) Timeline() ([]profile.Post, error) {
	usernames, err := n.store.Usernames()
	if err != nil {
		return nil, err
	}

	timeline := []profile.Post{}
	for _, username := range usernames {
		p, err := n.store.Get(username)
		if err != nil {
			n.logger.WithField("username", username).WithError(err).Debug("Skipping unreadable record")
			continue
		}
		timeline = append(timeline, p.Posts...)
	}

	sort.Slice(timeline, func(i, j int) bool {
		return timeline[i].Timestamp > timeline[j].Timestamp
	})

	return timeline, nil
}

// Recommend suggests users to follow: the users followed by the session
// user's followees, up to two hops out, excluding the session user and
// anyone already followed.
func (n *PeerNode) Recommend() ([]string, error) {
	if n.getState() != LoggedIn {
		return nil, cm.NewNodeErr(cm.NotLoggedIn, "")
	}

	n.sessionLock.Lock()
	username := n.username
	following := map[string]bool{}
	for followed := range n.profile.Following {
		following[followed] = true
	}
	n.sessionLock.Unlock()

	candidates := map[string]bool{}
	for followed := range following {
		p, err := n.CollectInfo(followed)
		if err != nil {
			continue
		}
		for second := range p.Following {
			candidates[second] = true
			secondProfile, err := n.CollectInfo(second)
			if err != nil {
				continue
			}
			for third := range secondProfile.Following {
				candidates[third] = true
			}
		}
	}

	res := []string{}
	for candidate := range candidates {
		if candidate == username || following[candidate] {
			continue
		}
		res = append(res, candidate)
	}
	sort.Strings(res)

	return res, nil
}

/*******************************************************************************
Live listener (SSE bridge)
*******************************************************************************/

// RegisterLiveListener installs the sink that receives newly-arrived posts.
// A second registration replaces the first.
func (n *PeerNode) RegisterLiveListener(listener LiveListener) {
	n.listenerLock.Lock()
	defer n.listenerLock.Unlock()

	n.listener = listener
}

// ClearLiveListener ...
func (n *PeerNode) ClearLiveListener() {
	n.listenerLock.Lock()
	defer n.listenerLock.Unlock()

	n.listener = nil
}

func (n *PeerNode) pushLive(post profile.Post) {
	n.listenerLock.Lock()
	listener := n.listener
	n.listenerLock.Unlock()

	// a missing sink silently drops the push
	if listener != nil {
		listener(post)
	}
}

/*******************************************************************************
Inbound gossip
*******************************************************************************/

// handleEvent routes one inbound gossip message. Handler failures are logged
// and never propagate; a bad message must not take other callbacks down.
func (n *PeerNode) handleEvent(evt substrate.Event) {
	info := classify(evt.Topic)

	switch info.kind {
	case postTopic:
		n.handlePost(info.username, evt.Data)
	case controlTopic:
		n.handleControl(info.username, info.variant, string(evt.Data))
	default:
		n.logger.WithField("topic", evt.Topic).Debug("Ignoring unknown topic")
	}
}

// handlePost appends a followed user's incoming post to their stored record
// and forwards it to the live listener if it was not a replay.
func (n *PeerNode) handlePost(username string, data []byte) {
	n.sessionLock.Lock()
	relevant := n.getState() == LoggedIn && n.profile.HasFollowing(username)
	n.sessionLock.Unlock()

	if !relevant {
		return
	}

	var post profile.Post
	if err := post.Unmarshal(data); err != nil {
		n.logger.WithField("username", username).WithError(err).Error("Decoding post")
		return
	}

	isNew, err := store.AppendPost(n.store, username, post)
	if err != nil {
		n.logger.WithField("username", username).WithError(err).Error("Appending post")
		return
	}

	if isNew {
		n.pushLive(post)
	}

	// collect immediately when the record outgrows the cap, instead of
	// waiting for the next timed sweep
	if p, err := n.store.Get(username); err == nil && len(p.Posts) > store.MaxPosts {
		if err := n.gc.SweepUser(username); err != nil {
			n.logger.WithField("username", username).WithError(err).Debug("Post-append sweep")
		}
	}
}

// handleControl applies one follow-graph change to the stored record, and to
// the in-memory profile too when it concerns the session user.
func (n *PeerNode) handleControl(username string, variant FollowVariant, subject string) {
	// profiles never reference themselves; a hostile publisher must not be
	// able to gossip a self edge into a record
	if subject == username {
		return
	}

	n.sessionLock.Lock()
	own := n.getState() == LoggedIn && username == n.username
	relevant := own || (n.getState() == LoggedIn && n.profile.HasFollowing(username))
	if own {
		switch variant {
		case WasFollowed:
			n.profile.AddFollower(subject)
		case Followed:
			n.profile.AddFollowing(subject)
		case WasUnfollowed:
			n.profile.RemoveFollower(subject)
		case Unfollowed:
			n.profile.RemoveFollowing(subject)
		}
	}
	n.sessionLock.Unlock()

	if !relevant {
		return
	}

	var err error
	switch variant {
	case WasFollowed:
		err = store.AddFollower(n.store, username, subject)
	case Followed:
		err = store.AddFollowing(n.store, username, subject)
	case WasUnfollowed:
		err = store.RemoveFollower(n.store, username, subject)
	case Unfollowed:
		err = store.RemoveFollowing(n.store, username, subject)
	}

	if err != nil {
		// fail-soft: the record may simply not be cached yet
		n.logger.WithFields(logrus.Fields{
			"username": username,
			"variant":  variant,
			"subject":  subject,
		}).WithError(err).Debug("Dropping control update")
	}
}
