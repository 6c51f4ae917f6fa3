package service

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	cm "github.com/peerline/peerline/src/common"
	"github.com/peerline/peerline/src/directory"
	"github.com/peerline/peerline/src/node"
	"github.com/peerline/peerline/src/profile"
	"github.com/sirupsen/logrus"
)

// Service exposes the peerline node over an HTTP API: account lifecycle,
// follow-graph edits, posting, the derived read views, and a live SSE
// stream of incoming posts.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.PeerNode
	dir         *directory.Client
	mux         *http.ServeMux
	logger      *logrus.Entry

	updatesLock sync.Mutex
	updatesSeq  int
}

// NewService ...
func NewService(bindAddress string, n *node.PeerNode, dir *directory.Client, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		dir:         dir,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering Peerline API handlers")
	s.mux.HandleFunc("/register", s.makeHandler(s.Register))
	s.mux.HandleFunc("/login", s.makeHandler(s.Login))
	s.mux.HandleFunc("/logout", s.makeHandler(s.Logout))
	s.mux.HandleFunc("/follow", s.makeHandler(s.Follow))
	s.mux.HandleFunc("/unfollow", s.makeHandler(s.Unfollow))
	s.mux.HandleFunc("/post", s.makeHandler(s.Post))
	s.mux.HandleFunc("/info/", s.makeHandler(s.GetInfo))
	s.mux.HandleFunc("/timeline", s.makeHandler(s.GetTimeline))
	s.mux.HandleFunc("/recommended", s.makeHandler(s.GetRecommended))
	s.mux.HandleFunc("/session", s.makeHandler(s.GetSession))
	// The SSE stream holds its connection open, so it bypasses the
	// serializing mutex in makeHandler.
	s.mux.HandleFunc("/updates", s.GetUpdates)
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe on the service's own mux. This is a blocking
// call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Peerline API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// Handler exposes the service's mux, mainly for tests.
func (s *Service) Handler() http.Handler {
	return s.mux
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type usernameRequest struct {
	Username string `json:"username"`
}

type postRequest struct {
	Text string `json:"text"`
}

// sessionInfo is the response of the /session endpoint.
type sessionInfo struct {
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username,omitempty"`
}

// hashPassword derives the directory record from a plaintext password. Only
// the hash ever leaves this process.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return fmt.Sprintf("%x", sum)
}

// Register creates a new account in the shared directory.
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	if _, err := s.dir.LookupUser(req.Username); err == nil {
		http.Error(w, "username already taken", http.StatusConflict)
		return
	}

	if err := s.node.Register(req.Username, hashPassword(req.Password)); err != nil {
		s.writeNodeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// Login validates the credentials against the directory and opens the
// session.
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	hash := hashPassword(req.Password)

	stored, err := s.dir.LookupUser(req.Username)
	if err != nil {
		// An unknown username and a wrong password are indistinguishable to
		// the caller.
		if cm.Is(err, cm.NotFound) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		s.writeNodeError(w, err)
		return
	}
	if stored != hash {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := s.node.Login(req.Username, hash); err != nil {
		s.writeNodeError(w, err)
		return
	}

	s.writeJSON(w, sessionInfo{LoggedIn: true, Username: req.Username})
}

// Logout ...
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.node.Logout(); err != nil {
		s.writeNodeError(w, err)
		return
	}

	s.writeJSON(w, sessionInfo{LoggedIn: false})
}

// Follow ...
func (s *Service) Follow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req usernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.node.Follow(req.Username); err != nil {
		s.writeNodeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Unfollow ...
func (s *Service) Unfollow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req usernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.node.Unfollow(req.Username); err != nil {
		s.writeNodeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Post publishes a new post and returns it, timestamp included.
func (s *Service) Post(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	post, err := s.node.Post(req.Text)
	if err != nil {
		s.writeNodeError(w, err)
		return
	}

	s.writeJSON(w, post)
}

// GetInfo returns a user's profile as currently known to this node.
func (s *Service) GetInfo(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Path[len("/info/"):]
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	p, err := s.node.GetInfo(username)
	if err != nil {
		s.writeNodeError(w, err)
		return
	}

	// Profile marshals its follower and following sets as sorted arrays,
	// which is friendlier to API consumers than raw map encoding.
	raw, err := p.Marshal()
	if err != nil {
		s.writeNodeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

// GetTimeline ...
func (s *Service) GetTimeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := s.node.Timeline()
	if err != nil {
		s.writeNodeError(w, err)
		return
	}

	s.writeJSON(w, timeline)
}

// GetRecommended ...
func (s *Service) GetRecommended(w http.ResponseWriter, r *http.Request) {
	recommended, err := s.node.Recommend()
	if err != nil {
		s.writeNodeError(w, err)
		return
	}

	s.writeJSON(w, recommended)
}

// GetSession ...
func (s *Service) GetSession(w http.ResponseWriter, r *http.Request) {
	info := sessionInfo{
		LoggedIn: s.node.IsLoggedIn(),
		Username: s.node.Username(),
	}

	s.writeJSON(w, info)
}

// GetUpdates streams incoming posts from followed users as server-sent
// events, one "data:" line of JSON per post. Only one subscriber is served
// at a time; a new connection displaces the previous one.
func (s *Service) GetUpdates(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	// A new connection displaces the previous one; the displaced handler
	// must not clear the listener out from under its successor.
	s.updatesLock.Lock()
	s.updatesSeq++
	seq := s.updatesSeq
	s.updatesLock.Unlock()

	postCh := make(chan profile.Post, 16)
	s.node.RegisterLiveListener(func(post profile.Post) {
		select {
		case postCh <- post:
		default:
			// slow consumer, drop
		}
	})
	defer func() {
		s.updatesLock.Lock()
		current := s.updatesSeq == seq
		s.updatesLock.Unlock()

		if current {
			s.node.ClearLiveListener()
		}
	}()

	s.logger.Debug("SSE subscriber connected")

	for {
		select {
		case post := <-postCh:
			raw, err := json.Marshal(post)
			if err != nil {
				s.logger.WithError(err).Error("Encoding SSE post")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", raw)
			flusher.Flush()
		case <-r.Context().Done():
			s.logger.Debug("SSE subscriber disconnected")
			return
		}
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeNodeError maps a core error to an HTTP status.
func (s *Service) writeNodeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case cm.Is(err, cm.NotFound):
		status = http.StatusNotFound
	case cm.Is(err, cm.InvalidCredentials):
		status = http.StatusUnauthorized
	case cm.Is(err, cm.NotLoggedIn):
		status = http.StatusUnauthorized
	case cm.Is(err, cm.AlreadyLoggedIn),
		cm.Is(err, cm.AlreadyFollowing),
		cm.Is(err, cm.NotFollowing),
		cm.Is(err, cm.SelfFollowRejected):
		status = http.StatusConflict
	case cm.Is(err, cm.UserUnreachable),
		cm.Is(err, cm.ProviderUnreachable),
		cm.Is(err, cm.NoPeersAvailable):
		status = http.StatusBadGateway
	}

	http.Error(w, err.Error(), status)
}
