package node

import "strings"

// Topic naming scheme. For a username U, the post stream is published on /U,
// and four control topics carry follow-graph changes: /U-wasFollowed and
// /U-wasUnfollowed notify U of a new or lost follower, /U-followed and
// /U-unfollowed notify U's followers that U's own following set changed.

// FollowVariant is one of the four control-topic suffixes.
type FollowVariant string

const (
	// WasFollowed ...
	WasFollowed FollowVariant = "wasFollowed"
	// Followed ...
	Followed FollowVariant = "followed"
	// WasUnfollowed ...
	WasUnfollowed FollowVariant = "wasUnfollowed"
	// Unfollowed ...
	Unfollowed FollowVariant = "unfollowed"
)

// followVariants is ordered so that classify tries the longer suffixes
// first; "-wasFollowed" also ends in "-followed".
var followVariants = []FollowVariant{WasFollowed, WasUnfollowed, Unfollowed, Followed}

// PostTopic returns the post-stream topic for a username.
func PostTopic(username string) string {
	return "/" + username
}

// ControlTopic returns one of a username's four control topics.
func ControlTopic(username string, variant FollowVariant) string {
	return "/" + username + "-" + string(variant)
}

// userTopics returns every topic associated with a username: the post stream
// and the four control topics. Following a user subscribes to all five;
// unfollowing drops all five.
func userTopics(username string) []string {
	return []string{
		PostTopic(username),
		ControlTopic(username, WasFollowed),
		ControlTopic(username, WasUnfollowed),
		ControlTopic(username, Followed),
		ControlTopic(username, Unfollowed),
	}
}

type topicKind int

const (
	unknownTopic topicKind = iota
	postTopic
	controlTopic
)

// topicInfo is the parsed form of an inbound topic name.
type topicInfo struct {
	kind     topicKind
	username string
	variant  FollowVariant
}

// classify parses a topic name into its tagged form, so inbound dispatch is
// a switch on the result rather than a list of predicate closures.
func classify(topic string) topicInfo {
	if !strings.HasPrefix(topic, "/") {
		return topicInfo{kind: unknownTopic}
	}

	body := topic[1:]
	if body == "" {
		return topicInfo{kind: unknownTopic}
	}

	for _, variant := range followVariants {
		suffix := "-" + string(variant)
		if strings.HasSuffix(body, suffix) {
			username := body[:len(body)-len(suffix)]
			if username == "" {
				return topicInfo{kind: unknownTopic}
			}
			return topicInfo{kind: controlTopic, username: username, variant: variant}
		}
	}

	return topicInfo{kind: postTopic, username: body}
}
