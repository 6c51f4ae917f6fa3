package store

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/peerline/peerline/src/common"
	"github.com/peerline/peerline/src/profile"
	"github.com/sirupsen/logrus"
)

func nowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

func TestPruneAge(t *testing.T) {
	now := time.Now()
	fresh := now.UnixNano() / int64(time.Millisecond)
	stale := now.Add(-PostRetention-time.Hour).UnixNano() / int64(time.Millisecond)

	posts := []profile.Post{
		{Username: "alice", Text: "new", Timestamp: fresh},
		{Username: "alice", Text: "old", Timestamp: stale},
	}

	pruned := Prune(posts, now)

	expected := []profile.Post{{Username: "alice", Text: "new", Timestamp: fresh}}
	if !reflect.DeepEqual(pruned, expected) {
		t.Fatalf("pruned should be %v, not %v", expected, pruned)
	}
}

func TestPruneCount(t *testing.T) {
	now := time.Now()
	base := now.UnixNano() / int64(time.Millisecond)

	posts := []profile.Post{}
	for i := 0; i < MaxPosts+10; i++ {
		posts = append(posts, profile.Post{
			Username:  "alice",
			Text:      fmt.Sprintf("post %d", i),
			Timestamp: base + int64(i),
		})
	}

	pruned := Prune(posts, now)

	if len(pruned) != MaxPosts {
		t.Fatalf("count cap should leave %d posts, got %d", MaxPosts, len(pruned))
	}

	// The oldest excess entries are the ones dropped.
	if pruned[0].Text != "post 10" {
		t.Fatalf("oldest kept post should be post 10, got %s", pruned[0].Text)
	}
}

func TestSweepIdempotent(t *testing.T) {
	s := NewInmemStore()
	logger := common.NewTestEntry(t, logrus.DebugLevel)

	p := profile.NewProfile()
	base := nowMs()
	for i := 0; i < MaxPosts+20; i++ {
		p.AppendPost(profile.Post{Username: "alice", Text: fmt.Sprintf("%d", i), Timestamp: base + int64(i)})
	}
	stale := time.Now().Add(-PostRetention-time.Hour).UnixNano() / int64(time.Millisecond)
	p.AppendPost(profile.Post{Username: "alice", Text: "stale", Timestamp: stale})

	if err := s.Set("alice", p); err != nil {
		t.Fatal(err)
	}

	gc := NewGC(s, logger)
	gc.Sweep()

	first, err := s.Get("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Posts) != MaxPosts {
		t.Fatalf("first sweep should enforce the cap, got %d posts", len(first.Posts))
	}
	for _, post := range first.Posts {
		if post.Text == "stale" {
			t.Fatal("first sweep should drop the stale post")
		}
	}

	// A second pass over an already-bounded record must change nothing.
	gc.Sweep()

	second, err := s.Get("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second sweep should be a no-op: %v vs %v", first, second)
	}
}

func TestSweepSkipsUnreadableRecord(t *testing.T) {
	s := NewInmemStore()
	logger := common.NewTestEntry(t, logrus.DebugLevel)

	good := profile.NewProfile()
	good.AppendPost(profile.Post{Username: "bob", Text: "keep", Timestamp: time.Now().Add(-PostRetention - time.Hour).UnixNano() / int64(time.Millisecond)})
	if err := s.Set("bob", good); err != nil {
		t.Fatal(err)
	}

	// Corrupt one record directly; the sweep must log and move on.
	s.Lock()
	s.records[s.namespace+"/alice"] = []byte("not a profile")
	s.Unlock()

	gc := NewGC(s, logger)
	gc.Sweep()

	swept, err := s.Get("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(swept.Posts) != 0 {
		t.Fatal("readable record should still be swept")
	}
}
