/*
Package node implements the peerline peer: a single-session social-network
participant on top of a pluggable p2p substrate.

A PeerNode owns the session lifecycle (Register, Login, Logout), the follow
graph (Follow, Unfollow), posting, and the derived read views (GetInfo,
Timeline, Recommend). Profiles of followed users are cached in a local store
and kept current by a background event loop that applies the follow-graph
and post gossip as it arrives. When a profile is needed in full, CollectInfo
queries every advertised provider and resolves disagreements with a
per-field majority merge.
*/
package node
