package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strings"
	"sync"
)

// SimpleKeyfile stores a node's private key as a plain hex dump of its D
// value, in a file readable by its owner only. No encryption; the data
// directory is the trust boundary.
type SimpleKeyfile struct {
	l       sync.Mutex
	keyfile string
}

// NewSimpleKeyfile ...
func NewSimpleKeyfile(keyfile string) *SimpleKeyfile {
	return &SimpleKeyfile{
		keyfile: keyfile,
	}
}

// ReadKey loads the private key. It refuses a keyfile that is readable by
// group or others.
func (k *SimpleKeyfile) ReadKey() (*ecdsa.PrivateKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.checkPermissions(); err != nil {
		return nil, err
	}

	buf, err := ioutil.ReadFile(k.keyfile)
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, err
	}

	return ParsePrivateKey(raw)
}

// WriteKey saves the private key, creating the parent directory if needed.
func (k *SimpleKeyfile) WriteKey(key *ecdsa.PrivateKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	rawKey := hex.EncodeToString(DumpPrivateKey(key))

	if err := os.MkdirAll(path.Dir(k.keyfile), 0700); err != nil {
		return err
	}

	return ioutil.WriteFile(k.keyfile, []byte(rawKey), 0600)
}

func (k *SimpleKeyfile) checkPermissions() error {
	info, err := os.Stat(k.keyfile)
	if err != nil {
		return err
	}

	// mask for the 'group' and 'others' permission bits
	var nonUserMask os.FileMode = (1 << 6) - 1

	if perm := info.Mode().Perm() & nonUserMask; perm != 0 {
		return fmt.Errorf("keyfile permissions should exclude 'group' and 'others'. Got %o", info.Mode().Perm())
	}

	return nil
}
