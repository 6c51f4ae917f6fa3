package store

import (
	"strings"
	"sync"

	cm "github.com/peerline/peerline/src/common"
	"github.com/peerline/peerline/src/profile"
)

// InmemStore is the in-memory Store, used in tests and when running without
// persistent storage. Records hold the same canonical encoding as the badger
// store so both behave identically under Marshal errors and namespacing.
type InmemStore struct {
	sync.RWMutex
	records   map[string][]byte
	namespace string
	locks     *userLocks
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		records:   make(map[string][]byte),
		namespace: defaultNamespace,
		locks:     newUserLocks(),
	}
}

// SetNamespace implements the Store interface.
func (s *InmemStore) SetNamespace(owner string) {
	s.Lock()
	defer s.Unlock()

	if owner == "" {
		owner = defaultNamespace
	}
	s.namespace = owner
}

func (s *InmemStore) key(username string) string {
	s.RLock()
	defer s.RUnlock()

	return s.namespace + "/" + username
}

func (s *InmemStore) rawGet(username string) (*profile.Profile, error) {
	s.RLock()
	raw, ok := s.records[s.namespace+"/"+username]
	s.RUnlock()

	if !ok {
		return nil, cm.NewNodeErr(cm.NotFound, username)
	}

	p := profile.NewProfile()
	if err := p.Unmarshal(raw); err != nil {
		return nil, cm.WrapNodeErr(cm.StorageIO, username, err)
	}

	return p, nil
}

func (s *InmemStore) rawSet(username string, p *profile.Profile) error {
	raw, err := p.Marshal()
	if err != nil {
		return cm.WrapNodeErr(cm.StorageIO, username, err)
	}

	key := s.key(username)

	s.Lock()
	s.records[key] = raw
	s.Unlock()

	return nil
}

// Get implements the Store interface.
func (s *InmemStore) Get(username string) (*profile.Profile, error) {
	l := s.locks.forUser(username)
	l.Lock()
	defer l.Unlock()

	return s.rawGet(username)
}

// Set implements the Store interface.
func (s *InmemStore) Set(username string, p *profile.Profile) error {
	l := s.locks.forUser(username)
	l.Lock()
	defer l.Unlock()

	return s.rawSet(username, p)
}

// Delete implements the Store interface.
func (s *InmemStore) Delete(username string) error {
	l := s.locks.forUser(username)
	l.Lock()
	defer l.Unlock()

	key := s.key(username)

	s.Lock()
	delete(s.records, key)
	s.Unlock()

	return nil
}

// Update implements the Store interface.
func (s *InmemStore) Update(username string, fn func(p *profile.Profile) bool) error {
	l := s.locks.forUser(username)
	l.Lock()
	defer l.Unlock()

	p, err := s.rawGet(username)
	if err != nil {
		return err
	}

	if !fn(p) {
		return nil
	}

	return s.rawSet(username, p)
}

// Usernames implements the Store interface.
func (s *InmemStore) Usernames() ([]string, error) {
	s.RLock()
	defer s.RUnlock()

	prefix := s.namespace + "/"

	res := []string{}
	for key := range s.records {
		if strings.HasPrefix(key, prefix) {
			res = append(res, strings.TrimPrefix(key, prefix))
		}
	}

	return res, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
