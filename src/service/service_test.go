package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cm "github.com/peerline/peerline/src/common"
	"github.com/peerline/peerline/src/config"
	"github.com/peerline/peerline/src/directory"
	"github.com/peerline/peerline/src/node"
	"github.com/peerline/peerline/src/store"
	"github.com/peerline/peerline/src/substrate"
)

func newTestService(t *testing.T, network *substrate.InmemNetwork, id string) (*Service, *node.PeerNode) {
	conf := config.NewTestConfig(t, cm.TestLogLevel)
	conf.FetchTimeout = 100 * time.Millisecond

	sub := network.Join(id)
	logger := conf.Logger().WithField("id", id)
	dir := directory.NewClient(sub, logger)
	n := node.NewPeerNode(conf, sub, dir, store.NewInmemStore())
	n.RunAsync()

	return NewService("127.0.0.1:0", n, dir, logger), n
}

func post(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	return w
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	return w
}

func TestRegisterLoginSession(t *testing.T) {
	network := substrate.NewInmemNetwork()
	svc, n := newTestService(t, network, "alice-node")
	defer n.Shutdown()

	creds := map[string]string{"username": "alice", "password": "secret"}

	if w := post(t, svc.Handler(), "/register", creds); w.Code != http.StatusCreated {
		t.Fatalf("register should return 201, got %d: %s", w.Code, w.Body.String())
	}

	if w := post(t, svc.Handler(), "/register", creds); w.Code != http.StatusConflict {
		t.Fatalf("duplicate register should return 409, got %d", w.Code)
	}

	bad := map[string]string{"username": "alice", "password": "wrong"}
	if w := post(t, svc.Handler(), "/login", bad); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password should return 401, got %d", w.Code)
	}

	unknown := map[string]string{"username": "nobody", "password": "secret"}
	if w := post(t, svc.Handler(), "/login", unknown); w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown username should return 401, got %d", w.Code)
	}

	if w := post(t, svc.Handler(), "/login", creds); w.Code != http.StatusOK {
		t.Fatalf("login should return 200, got %d: %s", w.Code, w.Body.String())
	}

	w := get(t, svc.Handler(), "/session")
	var session sessionInfo
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatal(err)
	}
	if !session.LoggedIn || session.Username != "alice" {
		t.Fatalf("session should be alice's, got %+v", session)
	}

	if w := post(t, svc.Handler(), "/logout", nil); w.Code != http.StatusOK {
		t.Fatalf("logout should return 200, got %d", w.Code)
	}
	if w := post(t, svc.Handler(), "/logout", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("double logout should return 401, got %d", w.Code)
	}
}

func TestPostAndInfo(t *testing.T) {
	network := substrate.NewInmemNetwork()
	svc, n := newTestService(t, network, "alice-node")
	defer n.Shutdown()

	creds := map[string]string{"username": "alice", "password": "secret"}
	post(t, svc.Handler(), "/register", creds)
	post(t, svc.Handler(), "/login", creds)

	if w := post(t, svc.Handler(), "/post", map[string]string{"text": ""}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty post should return 400, got %d", w.Code)
	}

	w := post(t, svc.Handler(), "/post", map[string]string{"text": "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("post should return 200, got %d: %s", w.Code, w.Body.String())
	}

	w = get(t, svc.Handler(), "/info/alice")
	if w.Code != http.StatusOK {
		t.Fatalf("info should return 200, got %d", w.Code)
	}

	var info struct {
		Posts []struct {
			Username string `json:"username"`
			Text     string `json:"text"`
		} `json:"posts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if len(info.Posts) != 1 || info.Posts[0].Text != "hello" {
		t.Fatalf("profile should carry the post, got %s", w.Body.String())
	}

	if w := get(t, svc.Handler(), "/info/stranger"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown user info should return 404, got %d", w.Code)
	}
}

func TestFollowAcrossNodes(t *testing.T) {
	network := substrate.NewInmemNetwork()
	aliceSvc, aliceNode := newTestService(t, network, "alice-node")
	bobSvc, bobNode := newTestService(t, network, "bob-node")
	defer aliceNode.Shutdown()
	defer bobNode.Shutdown()

	aliceCreds := map[string]string{"username": "alice", "password": "secret"}
	bobCreds := map[string]string{"username": "bob", "password": "secret"}

	post(t, aliceSvc.Handler(), "/register", aliceCreds)
	post(t, aliceSvc.Handler(), "/login", aliceCreds)
	post(t, bobSvc.Handler(), "/register", bobCreds)
	post(t, bobSvc.Handler(), "/login", bobCreds)

	if w := post(t, aliceSvc.Handler(), "/follow", map[string]string{"username": "alice"}); w.Code != http.StatusConflict {
		t.Fatalf("self-follow should return 409, got %d", w.Code)
	}

	if w := post(t, aliceSvc.Handler(), "/follow", map[string]string{"username": "bob"}); w.Code != http.StatusOK {
		t.Fatalf("follow should return 200, got %d: %s", w.Code, w.Body.String())
	}

	post(t, bobSvc.Handler(), "/post", map[string]string{"text": "hi from bob"})

	// alice's event loop ingests bob's post asynchronously
	deadline := time.Now().Add(time.Second)
	for {
		w := get(t, aliceSvc.Handler(), "/timeline")
		var timeline []struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &timeline); err != nil {
			t.Fatal(err)
		}
		if len(timeline) == 1 && timeline[0].Text == "hi from bob" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeline should carry bob's post, got %s", w.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if w := post(t, aliceSvc.Handler(), "/unfollow", map[string]string{"username": "bob"}); w.Code != http.StatusOK {
		t.Fatalf("unfollow should return 200, got %d", w.Code)
	}
	if w := post(t, aliceSvc.Handler(), "/unfollow", map[string]string{"username": "bob"}); w.Code != http.StatusConflict {
		t.Fatalf("double unfollow should return 409, got %d", w.Code)
	}
}

func TestUpdatesStream(t *testing.T) {
	network := substrate.NewInmemNetwork()
	aliceSvc, aliceNode := newTestService(t, network, "alice-node")
	bobSvc, bobNode := newTestService(t, network, "bob-node")
	defer aliceNode.Shutdown()
	defer bobNode.Shutdown()

	aliceCreds := map[string]string{"username": "alice", "password": "secret"}
	bobCreds := map[string]string{"username": "bob", "password": "secret"}

	post(t, aliceSvc.Handler(), "/register", aliceCreds)
	post(t, aliceSvc.Handler(), "/login", aliceCreds)
	post(t, bobSvc.Handler(), "/register", bobCreds)
	post(t, bobSvc.Handler(), "/login", bobCreds)
	post(t, aliceSvc.Handler(), "/follow", map[string]string{"username": "bob"})

	server := httptest.NewServer(aliceSvc.Handler())
	defer server.Close()

	res, err := http.Get(fmt.Sprintf("%s/updates", server.URL))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type should be text/event-stream, not %s", ct)
	}

	// give the handler goroutine time to install the live listener
	time.Sleep(50 * time.Millisecond)

	post(t, bobSvc.Handler(), "/post", map[string]string{"text": "live"})

	buf := make([]byte, 1024)
	resCh := make(chan string, 1)
	go func() {
		n, _ := res.Body.Read(buf)
		resCh <- string(buf[:n])
	}()

	select {
	case event := <-resCh:
		if !bytes.Contains([]byte(event), []byte(`"text":"live"`)) {
			t.Fatalf("SSE event should carry the post, got %q", event)
		}
		if !bytes.HasPrefix([]byte(event), []byte("data: ")) {
			t.Fatalf("SSE event should start with data:, got %q", event)
		}
	case <-time.After(time.Second):
		t.Fatal("SSE stream should have delivered the post")
	}
}

func TestUpdatesStreamDisplacement(t *testing.T) {
	network := substrate.NewInmemNetwork()
	aliceSvc, aliceNode := newTestService(t, network, "alice-node")
	bobSvc, bobNode := newTestService(t, network, "bob-node")
	defer aliceNode.Shutdown()
	defer bobNode.Shutdown()

	aliceCreds := map[string]string{"username": "alice", "password": "secret"}
	bobCreds := map[string]string{"username": "bob", "password": "secret"}

	post(t, aliceSvc.Handler(), "/register", aliceCreds)
	post(t, aliceSvc.Handler(), "/login", aliceCreds)
	post(t, bobSvc.Handler(), "/register", bobCreds)
	post(t, bobSvc.Handler(), "/login", bobCreds)
	post(t, aliceSvc.Handler(), "/follow", map[string]string{"username": "bob"})

	server := httptest.NewServer(aliceSvc.Handler())
	defer server.Close()

	// first subscriber, soon displaced
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/updates", server.URL), nil)
	if err != nil {
		t.Fatal(err)
	}
	first, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Body.Close()

	// second subscriber displaces the first
	second, err := http.Get(fmt.Sprintf("%s/updates", server.URL))
	if err != nil {
		t.Fatal(err)
	}
	defer second.Body.Close()
	time.Sleep(50 * time.Millisecond)

	// the first connection going away must not clear the second's listener
	cancel()
	time.Sleep(50 * time.Millisecond)

	post(t, bobSvc.Handler(), "/post", map[string]string{"text": "still live"})

	buf := make([]byte, 1024)
	resCh := make(chan string, 1)
	go func() {
		n, _ := second.Body.Read(buf)
		resCh <- string(buf[:n])
	}()

	select {
	case event := <-resCh:
		if !bytes.Contains([]byte(event), []byte(`"text":"still live"`)) {
			t.Fatalf("surviving stream should carry the post, got %q", event)
		}
	case <-time.After(time.Second):
		t.Fatal("surviving SSE stream should still deliver posts")
	}
}
