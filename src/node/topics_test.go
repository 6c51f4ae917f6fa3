package node

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		topic    string
		expected topicInfo
	}{
		{"/alice", topicInfo{kind: postTopic, username: "alice"}},
		{"/alice-wasFollowed", topicInfo{kind: controlTopic, username: "alice", variant: WasFollowed}},
		{"/alice-followed", topicInfo{kind: controlTopic, username: "alice", variant: Followed}},
		{"/alice-wasUnfollowed", topicInfo{kind: controlTopic, username: "alice", variant: WasUnfollowed}},
		{"/alice-unfollowed", topicInfo{kind: controlTopic, username: "alice", variant: Unfollowed}},
		{"/a-b-wasFollowed", topicInfo{kind: controlTopic, username: "a-b", variant: WasFollowed}},
		{"alice", topicInfo{kind: unknownTopic}},
		{"/", topicInfo{kind: unknownTopic}},
		{"/-followed", topicInfo{kind: unknownTopic}},
		{"_peer-discovery._p2p._pubsub", topicInfo{kind: unknownTopic}},
	}

	for _, tc := range testCases {
		info := classify(tc.topic)
		if !reflect.DeepEqual(info, tc.expected) {
			t.Fatalf("classify(%q) should be %+v, not %+v", tc.topic, tc.expected, info)
		}
	}
}

func TestUserTopics(t *testing.T) {
	topics := userTopics("bob")

	expected := []string{
		"/bob",
		"/bob-wasFollowed",
		"/bob-wasUnfollowed",
		"/bob-followed",
		"/bob-unfollowed",
	}

	if !reflect.DeepEqual(topics, expected) {
		t.Fatalf("userTopics should be %v, not %v", expected, topics)
	}
}
