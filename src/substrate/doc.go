// Package substrate defines the boundary between the peerline core and the
// underlying P2P stack.
//
// The core consumes the network through four primitive capabilities: a shared
// key/value directory, provider advertisement and discovery, request/response
// fetch against a specific peer, and topic-based publish/subscribe with an
// inbound event stream. The InmemSubstrate implementation joins several
// handles into a process-local network, which is what the tests and the
// standalone mode run on.
package substrate
