// Package store implements the durable per-username profile records and
// their garbage collection.
//
// Two implementations share the Store interface: BadgerStore persists
// records in a badger database, InmemStore keeps them in memory for tests
// and store-less runs. Both serialize mutating operations per username, so
// concurrent read-modify-write cycles on one record cannot lose updates.
package store
