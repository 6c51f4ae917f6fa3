// Package profile holds the replicated profile model and the quorum merge
// that reconciles conflicting copies fetched from different peers.
package profile
