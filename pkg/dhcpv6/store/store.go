// Package store implements the persisted-record snapshot/restore pair of
// spec section 6: a bbolt-backed record per interface that lets a host
// bridge the client session across a power cycle.
package store

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const recordBucket = "dhcp6c_sessions"

// Store wraps a BoltDB instance for persisting one Record per interface.
// Grounded on storage.Storage's open-once/bucket/JSON-record shape, keyed
// by interface name instead of an auto-incrementing sequence since a
// session record is a singleton per interface, not an append-only log.
type Store struct {
	db *bbolt.DB
}

// AddressRecord is one IA-Address slot in a Record snapshot.
type AddressRecord struct {
	Address           net.IP `json:"address"`
	PreferredLifetime uint32 `json:"preferred_lifetime"`
	ValidLifetime     uint32 `json:"valid_lifetime"`
	Status            int    `json:"status"`
	StackIndex        int    `json:"stack_index"`
}

// Record is the full snapshot described in spec section 6: state, client
// and server DUID, IA_NA, every IA-Address record, the option-request
// bitmap, FQDN, recorded server options, interface name, and
// accrued lease time.
type Record struct {
	Interface  string          `json:"interface"`
	State      string          `json:"state"`
	ClientDUID []byte          `json:"client_duid"`
	ServerDUID []byte          `json:"server_duid"`
	IAID       uint32          `json:"iaid"`
	T1         uint32          `json:"t1"`
	T2         uint32          `json:"t2"`
	Addresses  []AddressRecord `json:"addresses"`
	Requested  uint8           `json:"requested_options"`
	FQDNFlags  byte            `json:"fqdn_flags"`
	FQDNDomain string          `json:"fqdn_domain"`

	DNSServers  []net.IP `json:"dns_servers"`
	SNTPServers []net.IP `json:"sntp_servers"`
	TimeZone    string   `json:"time_zone"`
	DomainNames []string `json:"domain_names"`

	AccruedSeconds uint32    `json:"accrued_seconds"`
	SnapshotTaken  time.Time `json:"snapshot_taken"`
}

// Open opens (or creates) the persisted-record database at path. Passing
// "" or "disabled" disables persistence, matching storage.Open's sentinel
// so a client configured without a store path runs entirely in memory.
func Open(path string) (*Store, error) {
	if path == "" || strings.EqualFold(path, "disabled") {
		return nil, errors.New("store: persistence disabled")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database. Safe to call on a nil *Store or
// one whose Open call failed.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Snapshot persists rec, keyed by rec.Interface, overwriting any prior
// record for that interface (spec section 6: the snapshot call captures
// the full session state named above).
func (s *Store) Snapshot(rec Record) error {
	if s == nil || s.db == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))
		return b.Put([]byte(rec.Interface), data)
	})
}

// Restore loads the last Record persisted for iface, if any. ok is false
// when no record exists, distinguishing a cold start from a power-cycle
// resume (spec section 6: "the restore call merges these back in").
func (s *Store) Restore(iface string) (rec Record, ok bool, err error) {
	if s == nil || s.db == nil {
		return Record{}, false, nil
	}
	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))
		data := b.Get([]byte(iface))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &rec)
	})
	return rec, ok, err
}

// Delete removes any persisted record for iface, e.g. after a clean
// *delete* of the session (spec section 5's cancellation ordering).
func (s *Store) Delete(iface string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(recordBucket)).Delete([]byte(iface))
	})
}
