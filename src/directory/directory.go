// Package directory is a thin policy layer over the substrate's key/value
// store. It owns the "/<username>" key scheme used for account registration
// and decides which substrate failures are real errors: having no peers to
// replicate to yet is not one of them.
package directory

import (
	cm "github.com/peerline/peerline/src/common"
	"github.com/peerline/peerline/src/substrate"
	"github.com/sirupsen/logrus"
)

// Key returns the directory key for a username.
func Key(username string) string {
	return "/" + username
}

// Client ...
type Client struct {
	sub    substrate.Substrate
	logger *logrus.Entry
}

// NewClient ...
func NewClient(sub substrate.Substrate, logger *logrus.Entry) *Client {
	return &Client{
		sub:    sub,
		logger: logger.WithField("component", "directory"),
	}
}

// Get reads a directory key. A definitively absent key maps to NotFound; an
// empty routing table maps to NoPeersAvailable, which callers must not treat
// as absence.
func (c *Client) Get(key string) ([]byte, error) {
	value, err := c.sub.DirGet(key)
	if err == substrate.ErrNotFound {
		return nil, cm.NewNodeErr(cm.NotFound, key)
	}
	if err == substrate.ErrNoPeers {
		return nil, cm.NewNodeErr(cm.NoPeersAvailable, key)
	}
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Put writes a directory key. The "no peers in routing table" failure is
// swallowed: there being nobody yet to replicate to is not an error. All
// other failures propagate.
func (c *Client) Put(key string, value []byte) error {
	err := c.sub.DirPut(key, value)
	if err == substrate.ErrNoPeers {
		c.logger.WithField("key", key).Debug("No peers in routing table")
		return nil
	}

	return err
}

// RegisterUser publishes a username's password hash under its directory key.
func (c *Client) RegisterUser(username, passwordHash string) error {
	return c.Put(Key(username), []byte(passwordHash))
}

// LookupUser returns the registered password hash for username.
func (c *Client) LookupUser(username string) (string, error) {
	value, err := c.Get(Key(username))
	if err != nil {
		return "", err
	}

	return string(value), nil
}
