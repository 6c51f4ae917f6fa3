package keys

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestDumpParseRoundTrip(t *testing.T) {
	key, err := GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}

	dump := DumpPrivateKey(key)

	parsed, err := ParsePrivateKey(dump)
	if err != nil {
		t.Fatal(err)
	}

	if parsed.D.Cmp(key.D) != 0 {
		t.Fatalf("parsed D should be %v, not %v", key.D, parsed.D)
	}

	if PeerID(&parsed.PublicKey) != PeerID(&key.PublicKey) {
		t.Fatal("PeerID should be stable across dump/parse")
	}
}

func TestPeerIDFormat(t *testing.T) {
	key, err := GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}

	id := PeerID(&key.PublicKey)
	if len(id) != 8 {
		t.Fatalf("PeerID should be 8 hex chars, got %q", id)
	}
}

func TestParsePrivateKeyRejectsInvalid(t *testing.T) {
	if _, err := ParsePrivateKey([]byte{0x01}); err == nil {
		t.Fatal("a short dump should be rejected")
	}

	zero := make([]byte, 32)
	if _, err := ParsePrivateKey(zero); err == nil {
		t.Fatal("a zero D should be rejected")
	}

	overflow := make([]byte, 32)
	for i := range overflow {
		overflow[i] = 0xff
	}
	if _, err := ParsePrivateKey(overflow); err == nil {
		t.Fatal("a D above the curve order should be rejected")
	}
}

func TestSimpleKeyfile(t *testing.T) {
	dir, err := ioutil.TempDir("", "keys_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	keyfile := filepath.Join(dir, "priv_key")

	key, err := GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}

	simpleKeyfile := NewSimpleKeyfile(keyfile)

	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatal(err)
	}

	read, err := simpleKeyfile.ReadKey()
	if err != nil {
		t.Fatal(err)
	}

	if read.D.Cmp(key.D) != 0 {
		t.Fatalf("read key should equal written key")
	}
}

func TestSimpleKeyfileRejectsLoosePermissions(t *testing.T) {
	dir, err := ioutil.TempDir("", "keys_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	keyfile := filepath.Join(dir, "priv_key")

	key, err := GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}

	simpleKeyfile := NewSimpleKeyfile(keyfile)
	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatal(err)
	}

	if err := os.Chmod(keyfile, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := simpleKeyfile.ReadKey(); err == nil {
		t.Fatal("a world-readable keyfile should be refused")
	}
}
