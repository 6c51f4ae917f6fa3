package profile

import (
	"bytes"
	"sort"

	"github.com/ugorji/go/codec"
)

// Post is a single timeline entry. Posts are immutable once created and are
// ordered by Timestamp; the timestamp doubles as the post's identity when
// copies from different peers are merged.
type Post struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` //milliseconds
}

// Profile is the replicated state of one username: who follows them, who they
// follow, and their posts in insertion order.
type Profile struct {
	Followers map[string]bool
	Following map[string]bool
	Posts     []Post
}

// NewProfile returns an empty profile.
func NewProfile() *Profile {
	return &Profile{
		Followers: make(map[string]bool),
		Following: make(map[string]bool),
		Posts:     []Post{},
	}
}

// AddFollower ...
func (p *Profile) AddFollower(username string) {
	p.Followers[username] = true
}

// RemoveFollower ...
func (p *Profile) RemoveFollower(username string) {
	delete(p.Followers, username)
}

// AddFollowing ...
func (p *Profile) AddFollowing(username string) {
	p.Following[username] = true
}

// RemoveFollowing ...
func (p *Profile) RemoveFollowing(username string) {
	delete(p.Following, username)
}

// HasFollowing ...
func (p *Profile) HasFollowing(username string) bool {
	return p.Following[username]
}

// AppendPost ...
func (p *Profile) AppendPost(post Post) {
	p.Posts = append(p.Posts, post)
}

// wireProfile is the serialized shape of a Profile. The follower and
// following sets are flattened to sorted arrays so that equal profiles
// produce equal bytes.
type wireProfile struct {
	Followers []string `json:"followers"`
	Following []string `json:"following"`
	Posts     []Post   `json:"posts"`
}

func sortedKeys(set map[string]bool) []string {
	res := make([]string, 0, len(set))
	for k := range set {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

//Marshal - json encoding of Profile
func (p *Profile) Marshal() ([]byte, error) {
	wire := wireProfile{
		Followers: sortedKeys(p.Followers),
		Following: sortedKeys(p.Following),
		Posts:     p.Posts,
	}
	if wire.Posts == nil {
		wire.Posts = []Post{}
	}

	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(wire); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (p *Profile) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	var wire wireProfile
	if err := dec.Decode(&wire); err != nil {
		return err
	}

	p.Followers = make(map[string]bool)
	for _, f := range wire.Followers {
		p.Followers[f] = true
	}

	p.Following = make(map[string]bool)
	for _, f := range wire.Following {
		p.Following[f] = true
	}

	p.Posts = wire.Posts
	if p.Posts == nil {
		p.Posts = []Post{}
	}

	return nil
}

//Marshal - json encoding of Post
func (p *Post) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(p); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (p *Post) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(p)
}
