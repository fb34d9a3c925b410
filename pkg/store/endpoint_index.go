// Package store implements the Endpoint Index: a durable mapping from a
// function's canonical endpoint string to its leased IPv4 address,
// surviving Runtime Daemon restarts. A single bbolt bucket of raw
// bytes — no JSON envelope is needed for a 4-byte value.
package store

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketEndpoints = []byte("endpoints")

// ErrNotFound is returned when an endpoint has no index entry.
var ErrNotFound = errors.New("endpoint not indexed")

// EndpointIndex is the durable KV store backing the Orchestrator's
// Resolve operation: canonical endpoint string -> raw IPv4 bytes.
type EndpointIndex struct {
	db *bolt.DB
}

// Open opens (creating if absent) the endpoint index database under
// dataDir.
func Open(dataDir string) (*EndpointIndex, error) {
	dbPath := filepath.Join(dataDir, "endpoints.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open endpoint index %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEndpoints)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create endpoints bucket: %w", err)
	}

	return &EndpointIndex{db: db}, nil
}

// Close closes the underlying database file.
func (e *EndpointIndex) Close() error {
	return e.db.Close()
}

// Put records endpoint's leased address, overwriting any prior entry.
func (e *EndpointIndex) Put(endpoint string, ip net.IP) error {
	v4 := ip.To4()
	if v4 == nil {
		return fmt.Errorf("put %s: not an IPv4 address: %s", endpoint, ip)
	}

	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEndpoints).Put([]byte(endpoint), []byte(v4))
	})
}

// Get returns endpoint's indexed address, or ErrNotFound if it has none.
func (e *EndpointIndex) Get(endpoint string) (net.IP, error) {
	var ip net.IP
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEndpoints).Get([]byte(endpoint))
		if v == nil {
			return ErrNotFound
		}
		ip = net.IP(append([]byte(nil), v...))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ip, nil
}

// Delete removes endpoint's index entry. Missing entries are not an
// error — callers (chiefly the Resolve self-healing path and Delete)
// treat this as idempotent cleanup.
func (e *EndpointIndex) Delete(endpoint string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEndpoints).Delete([]byte(endpoint))
	})
}
