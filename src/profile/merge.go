package profile

import "sort"

// Merge combines candidate copies of the same user's profile into one, field
// by field, by majority vote. A value survives only if strictly more than
// half of the candidates carry it, which tolerates a stale or lying minority
// of responders. Posts vote by timestamp, which stands in for post identity.
// With a single candidate every value trivially survives.
//
// The filter assumes an honest majority among responders; an attacker
// controlling more than half of the responding provider set for a key decides
// the outcome. That is a documented limitation, not something Merge defends
// against.
func Merge(candidates []*Profile) *Profile {
	followerVotes := map[string]int{}
	followingVotes := map[string]int{}
	postVotes := map[int64]int{}
	postByTimestamp := map[int64]Post{}

	for _, candidate := range candidates {
		for follower := range candidate.Followers {
			followerVotes[follower]++
		}
		for following := range candidate.Following {
			followingVotes[following]++
		}
		// one vote per distinct timestamp per candidate; a copy repeating
		// the same post must not count twice
		seen := map[int64]bool{}
		for _, post := range candidate.Posts {
			if seen[post.Timestamp] {
				continue
			}
			seen[post.Timestamp] = true
			postVotes[post.Timestamp]++
			postByTimestamp[post.Timestamp] = post
		}
	}

	quorum := func(votes int) bool {
		return votes*2 > len(candidates)
	}

	merged := NewProfile()
	for follower, votes := range followerVotes {
		if quorum(votes) {
			merged.Followers[follower] = true
		}
	}
	for following, votes := range followingVotes {
		if quorum(votes) {
			merged.Following[following] = true
		}
	}
	for timestamp, votes := range postVotes {
		if quorum(votes) {
			merged.Posts = append(merged.Posts, postByTimestamp[timestamp])
		}
	}

	sort.Slice(merged.Posts, func(i, j int) bool {
		return merged.Posts[i].Timestamp > merged.Posts[j].Timestamp
	})

	return merged
}
