package peerline

import (
	"io/ioutil"
	"os"
	"testing"

	cm "github.com/peerline/peerline/src/common"
	"github.com/peerline/peerline/src/config"
	"github.com/peerline/peerline/src/crypto/keys"
	"github.com/peerline/peerline/src/profile"
	"github.com/peerline/peerline/src/substrate"
)

func newTestConfig(t *testing.T) *config.Config {
	dir, err := ioutil.TempDir("", "peerline")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	conf := config.NewTestConfig(t, cm.TestLogLevel)
	conf.SetDataDir(dir)
	conf.NoService = true

	return conf
}

func TestInitGeneratesAndReusesKey(t *testing.T) {
	conf := newTestConfig(t)

	engine := NewPeerline(conf)
	if err := engine.Init(); err != nil {
		t.Fatal(err)
	}
	defer engine.Node.Shutdown()

	if conf.Key == nil {
		t.Fatal("Init should have generated a key")
	}

	firstID := keys.PeerID(&conf.Key.PublicKey)

	// A second engine on the same datadir picks up the same key.
	conf2 := config.NewTestConfig(t, cm.TestLogLevel)
	conf2.SetDataDir(conf.DataDir)
	conf2.NoService = true

	engine2 := NewPeerline(conf2)
	if err := engine2.Init(); err != nil {
		t.Fatal(err)
	}
	defer engine2.Node.Shutdown()

	if got := keys.PeerID(&conf2.Key.PublicKey); got != firstID {
		t.Fatalf("second Init should reuse the key, got peer ID %s instead of %s", got, firstID)
	}
}

func TestInitWithSharedSubstrate(t *testing.T) {
	network := substrate.NewInmemNetwork()

	conf := newTestConfig(t)
	engine := NewPeerline(conf)
	engine.Substrate = network.Join("preset-id")

	if err := engine.Init(); err != nil {
		t.Fatal(err)
	}
	defer engine.Node.Shutdown()

	if engine.Substrate.LocalID() != "preset-id" {
		t.Fatalf("Init should keep the preset substrate, got %s", engine.Substrate.LocalID())
	}
	if engine.Service != nil {
		t.Fatal("NoService should disable the HTTP API")
	}
}

func TestInitBadgerStore(t *testing.T) {
	conf := newTestConfig(t)
	conf.Store = true

	engine := NewPeerline(conf)
	if err := engine.Init(); err != nil {
		t.Fatal(err)
	}
	defer engine.Node.Shutdown()

	p := profile.NewProfile()
	p.AddFollower("bob")
	if err := engine.Store.Set("alice", p); err != nil {
		t.Fatal(err)
	}

	stored, err := engine.Store.Get("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Followers["bob"] {
		t.Fatalf("badger store should persist the record, got %+v", stored)
	}
}
