// Package config defines the configuration of a peerline node, the default
// values, and the location of the data directory.
package config
