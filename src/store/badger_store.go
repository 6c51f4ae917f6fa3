package store

import (
	"strings"
	"sync"

	"github.com/dgraph-io/badger"
	cm "github.com/peerline/peerline/src/common"
	"github.com/peerline/peerline/src/profile"
)

const (
	profilePrefix    = "profile"
	defaultNamespace = "_"
)

// BadgerStore is the badger-backed Store. Records are keyed
// profile/<namespace>/<username> and hold the canonical encoding of the
// Profile.
type BadgerStore struct {
	db    *badger.DB
	path  string
	locks *userLocks

	nsLock    sync.RWMutex
	namespace string
}

//NewBadgerStore creates or reopens a store at path
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		db:        handle,
		path:      path,
		locks:     newUserLocks(),
		namespace: defaultNamespace,
	}

	return store, nil
}

// Path returns the database directory.
func (s *BadgerStore) Path() string {
	return s.path
}

// SetNamespace implements the Store interface.
func (s *BadgerStore) SetNamespace(owner string) {
	s.nsLock.Lock()
	defer s.nsLock.Unlock()

	if owner == "" {
		owner = defaultNamespace
	}
	s.namespace = owner
}

func (s *BadgerStore) key(username string) []byte {
	s.nsLock.RLock()
	defer s.nsLock.RUnlock()

	return []byte(profilePrefix + "/" + s.namespace + "/" + username)
}

func (s *BadgerStore) nsKeyPrefix() []byte {
	s.nsLock.RLock()
	defer s.nsLock.RUnlock()

	return []byte(profilePrefix + "/" + s.namespace + "/")
}

func (s *BadgerStore) dbGet(username string) (*profile.Profile, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(username))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})

	if err == badger.ErrKeyNotFound {
		return nil, cm.NewNodeErr(cm.NotFound, username)
	}
	if err != nil {
		return nil, cm.WrapNodeErr(cm.StorageIO, username, err)
	}

	p := profile.NewProfile()
	if err := p.Unmarshal(raw); err != nil {
		return nil, cm.WrapNodeErr(cm.StorageIO, username, err)
	}

	return p, nil
}

func (s *BadgerStore) dbSet(username string, p *profile.Profile) error {
	raw, err := p.Marshal()
	if err != nil {
		return cm.WrapNodeErr(cm.StorageIO, username, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(username), raw)
	})
	if err != nil {
		return cm.WrapNodeErr(cm.StorageIO, username, err)
	}

	return nil
}

// Get implements the Store interface.
func (s *BadgerStore) Get(username string) (*profile.Profile, error) {
	l := s.locks.forUser(username)
	l.Lock()
	defer l.Unlock()

	return s.dbGet(username)
}

// Set implements the Store interface.
func (s *BadgerStore) Set(username string, p *profile.Profile) error {
	l := s.locks.forUser(username)
	l.Lock()
	defer l.Unlock()

	return s.dbSet(username, p)
}

// Delete implements the Store interface.
func (s *BadgerStore) Delete(username string) error {
	l := s.locks.forUser(username)
	l.Lock()
	defer l.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(username))
	})
	if err != nil {
		return cm.WrapNodeErr(cm.StorageIO, username, err)
	}

	return nil
}

// Update implements the Store interface.
func (s *BadgerStore) Update(username string, fn func(p *profile.Profile) bool) error {
	l := s.locks.forUser(username)
	l.Lock()
	defer l.Unlock()

	p, err := s.dbGet(username)
	if err != nil {
		return err
	}

	if !fn(p) {
		return nil
	}

	return s.dbSet(username, p)
}

// Usernames implements the Store interface.
func (s *BadgerStore) Usernames() ([]string, error) {
	prefix := s.nsKeyPrefix()

	res := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			res = append(res, strings.TrimPrefix(key, string(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, cm.WrapNodeErr(cm.StorageIO, "", err)
	}

	return res, nil
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
