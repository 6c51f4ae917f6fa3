package directory

import (
	"testing"

	cm "github.com/peerline/peerline/src/common"
	"github.com/peerline/peerline/src/substrate"
	"github.com/sirupsen/logrus"
)

func TestPutSwallowsNoPeers(t *testing.T) {
	network := substrate.NewInmemNetwork()
	sub := network.Join("n1")
	client := NewClient(sub, cm.NewTestEntry(t, logrus.DebugLevel))

	// n1 is alone; the substrate reports no peers but registration must
	// still succeed.
	if err := client.RegisterUser("alice", "hash"); err != nil {
		t.Fatalf("Put should swallow the no-peers failure, got %v", err)
	}

	hash, err := client.LookupUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if hash != "hash" {
		t.Fatalf("password hash should be %q, not %q", "hash", hash)
	}
}

func TestGetDistinguishesAbsence(t *testing.T) {
	network := substrate.NewInmemNetwork()
	sub := network.Join("n1")
	client := NewClient(sub, cm.NewTestEntry(t, logrus.DebugLevel))

	// Alone: the lookup cannot conclude absence.
	if _, err := client.Get(Key("alice")); !cm.Is(err, cm.NoPeersAvailable) {
		t.Fatalf("lookup with no peers should be NoPeersAvailable, got %v", err)
	}

	network.Join("n2")

	// With peers and no entry: definitively absent.
	if _, err := client.Get(Key("alice")); !cm.Is(err, cm.NotFound) {
		t.Fatalf("lookup of a missing key should be NotFound, got %v", err)
	}
}
