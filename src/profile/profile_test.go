package profile

import (
	"reflect"
	"testing"
)

func TestMarshalRoundTrip(t *testing.T) {
	p := NewProfile()
	p.AddFollower("bob")
	p.AddFollowing("carol")
	p.AppendPost(Post{Username: "alice", Text: "hello", Timestamp: 1000})

	raw, err := p.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	decoded := NewProfile()
	if err := decoded.Unmarshal(raw); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(p, decoded) {
		t.Fatalf("decoded profile should be %v, not %v", p, decoded)
	}
}

func TestMarshalEmptyProfile(t *testing.T) {
	raw, err := NewProfile().Marshal()
	if err != nil {
		t.Fatal(err)
	}

	decoded := &Profile{}
	if err := decoded.Unmarshal(raw); err != nil {
		t.Fatal(err)
	}

	if len(decoded.Followers) != 0 || len(decoded.Following) != 0 || len(decoded.Posts) != 0 {
		t.Fatalf("empty profile should decode empty, got %v", decoded)
	}
	if decoded.Posts == nil {
		t.Fatal("posts should decode to an empty slice, not nil")
	}
}

func TestMarshalCanonical(t *testing.T) {
	p1 := NewProfile()
	p1.AddFollower("bob")
	p1.AddFollower("carol")

	p2 := NewProfile()
	p2.AddFollower("carol")
	p2.AddFollower("bob")

	raw1, err := p1.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	raw2, err := p2.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	if string(raw1) != string(raw2) {
		t.Fatalf("equal profiles should encode to equal bytes: %s vs %s", raw1, raw2)
	}
}

func TestPostRoundTrip(t *testing.T) {
	post := Post{Username: "alice", Text: "hello", Timestamp: 1000}

	raw, err := post.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var decoded Post
	if err := decoded.Unmarshal(raw); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(post, decoded) {
		t.Fatalf("decoded post should be %v, not %v", post, decoded)
	}
}
