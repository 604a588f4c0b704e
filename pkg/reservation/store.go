package reservation

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/portguard/pkg/perr"
	"github.com/cuemby/portguard/pkg/types"
)

var bucketReservations = []byte("reservations")
var bucketLabels = []byte("port_labels")

// portLabel is the persisted override record for one port: an operator
// label plus free-text documentation (spec §6 update_port_label/
// update_port_documentation).
type portLabel struct {
	Label         string
	Documentation string
}

// Store is the bbolt-backed Reservation Store (C2). Every write runs
// inside a single db.Update transaction, which bbolt already serializes
// against every other writer; that single critical section is what gives
// batched creates the "no two concurrent batches both see a port free"
// guarantee spec §4.2 requires, without an additional in-process lock.
type Store struct {
	db *bolt.DB
}

// NewStore opens (creating if absent) the reservations bucket in
// dataDir/portguard.db, mirroring teacher's NewBoltStore dbPath/bucket
// bootstrap in pkg/storage/boltdb.go.
func NewStore(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "portguard.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open reservation database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketReservations); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketLabels)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create reservations bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func reservationKey(port int, protocol types.Protocol) []byte {
	return []byte(types.PortKey{Port: port, Protocol: protocol}.String())
}

// CreateBatch inserts all of reservations or none. Every requested port is
// checked for an existing, still-active occupant held by a different owner
// before anything is written (the same owner's lease is overwritten); if
// any is held by someone else the whole batch is rejected with a
// *perr.ConflictError listing every conflicting port, matching spec §4.2's
// "n reservations or zero" atomic-batch requirement.
func (s *Store) CreateBatch(reservations []*types.Reservation, now time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReservations)

		var conflicts []types.PortKey
		for _, res := range reservations {
			key := reservationKey(res.Port, res.Protocol)
			data := b.Get(key)
			if data == nil {
				continue
			}
			var existing types.Reservation
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("decode existing reservation %s: %w", key, err)
			}
			if existing.Active(now) && existing.OwnerID != res.OwnerID {
				conflicts = append(conflicts, res.Key())
			}
		}
		if len(conflicts) > 0 {
			return &perr.ConflictError{Ports: conflicts}
		}

		for _, res := range reservations {
			data, err := json.Marshal(res)
			if err != nil {
				return fmt.Errorf("encode reservation: %w", err)
			}
			if err := b.Put(reservationKey(res.Port, res.Protocol), data); err != nil {
				return fmt.Errorf("put reservation: %w", err)
			}
		}
		return nil
	})
}

// Release removes the reservations at ports held by owner, returning how
// many were actually removed. Ports held by a different owner are left
// untouched.
func (s *Store) Release(ports []int, protocol types.Protocol, owner string) (int, error) {
	released := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReservations)
		for _, port := range ports {
			key := reservationKey(port, protocol)
			data := b.Get(key)
			if data == nil {
				continue
			}
			var existing types.Reservation
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("decode reservation %s: %w", key, err)
			}
			if existing.OwnerID != owner {
				continue
			}
			if err := b.Delete(key); err != nil {
				return fmt.Errorf("delete reservation %s: %w", key, err)
			}
			released++
		}
		return nil
	})
	return released, err
}

// ReleaseAll removes every reservation held by owner, regardless of port.
func (s *Store) ReleaseAll(owner string) (int, error) {
	released := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReservations)
		var toDelete [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var res types.Reservation
			if err := json.Unmarshal(v, &res); err != nil {
				return fmt.Errorf("decode reservation %s: %w", k, err)
			}
			if res.OwnerID == owner {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete reservation %s: %w", k, err)
			}
			released++
		}
		return nil
	})
	return released, err
}

// GetActive returns the active reservations among ports (for protocol), or
// every active reservation if ports is empty.
func (s *Store) GetActive(ports []int, protocol types.Protocol, now time.Time) ([]*types.Reservation, error) {
	var out []*types.Reservation
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReservations)

		if len(ports) == 0 {
			return b.ForEach(func(k, v []byte) error {
				var res types.Reservation
				if err := json.Unmarshal(v, &res); err != nil {
					return fmt.Errorf("decode reservation %s: %w", k, err)
				}
				if res.Active(now) {
					out = append(out, &res)
				}
				return nil
			})
		}

		for _, port := range ports {
			data := b.Get(reservationKey(port, protocol))
			if data == nil {
				continue
			}
			var res types.Reservation
			if err := json.Unmarshal(data, &res); err != nil {
				return fmt.Errorf("decode reservation: %w", err)
			}
			if res.Active(now) {
				out = append(out, &res)
			}
		}
		return nil
	})
	return out, err
}

// GetByOwner returns every reservation held by owner, optionally filtered
// to only those still active.
func (s *Store) GetByOwner(owner string, activeOnly bool, now time.Time) ([]*types.Reservation, error) {
	var out []*types.Reservation
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReservations)
		return b.ForEach(func(k, v []byte) error {
			var res types.Reservation
			if err := json.Unmarshal(v, &res); err != nil {
				return fmt.Errorf("decode reservation %s: %w", k, err)
			}
			if res.OwnerID != owner {
				return nil
			}
			if activeOnly && !res.Active(now) {
				return nil
			}
			out = append(out, &res)
			return nil
		})
	})
	return out, err
}

// Extend updates a reservation's expiry if owner currently holds it and
// newExpiresAt is strictly later than the current value (a FOREVER lease
// accepts any newExpiresAt). Returns false
// (with no error) if the reservation doesn't exist or owner doesn't match.
func (s *Store) Extend(port int, protocol types.Protocol, owner string, newExpiresAt time.Time) (bool, error) {
	extended := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReservations)
		key := reservationKey(port, protocol)
		data := b.Get(key)
		if data == nil {
			return nil
		}
		var res types.Reservation
		if err := json.Unmarshal(data, &res); err != nil {
			return fmt.Errorf("decode reservation %s: %w", key, err)
		}
		if res.OwnerID != owner {
			return nil
		}
		if !res.IsForever() && !newExpiresAt.After(res.ExpiresAt) {
			return nil
		}
		res.ExpiresAt = newExpiresAt
		updated, err := json.Marshal(&res)
		if err != nil {
			return fmt.Errorf("encode reservation: %w", err)
		}
		if err := b.Put(key, updated); err != nil {
			return fmt.Errorf("put reservation: %w", err)
		}
		extended = true
		return nil
	})
	return extended, err
}

// GCExpired removes every reservation whose expiry is at or before now,
// skipping FOREVER leases (Reservation.IsForever).
func (s *Store) GCExpired(now time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReservations)
		var toDelete [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var res types.Reservation
			if err := json.Unmarshal(v, &res); err != nil {
				return fmt.Errorf("decode reservation %s: %w", k, err)
			}
			if !res.IsForever() && !res.ExpiresAt.After(now) {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete reservation %s: %w", k, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *Store) getLabel(port int, protocol types.Protocol) (portLabel, error) {
	var out portLabel
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLabels).Get(reservationKey(port, protocol))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &out)
	})
	return out, err
}

func (s *Store) putLabel(port int, protocol types.Protocol, l portLabel) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("encode port label: %w", err)
		}
		return tx.Bucket(bucketLabels).Put(reservationKey(port, protocol), data)
	})
}

// SetLabel persists an operator-facing label override for (port, protocol).
func (s *Store) SetLabel(port int, protocol types.Protocol, label string) error {
	l, err := s.getLabel(port, protocol)
	if err != nil {
		return fmt.Errorf("read existing port label: %w", err)
	}
	l.Label = label
	return s.putLabel(port, protocol, l)
}

// GetLabel returns the persisted label override for (port, protocol), or
// the empty string if none was ever set.
func (s *Store) GetLabel(port int, protocol types.Protocol) (string, error) {
	l, err := s.getLabel(port, protocol)
	return l.Label, err
}

// SetDocumentation persists free-text documentation for (port, protocol).
func (s *Store) SetDocumentation(port int, protocol types.Protocol, text string) error {
	l, err := s.getLabel(port, protocol)
	if err != nil {
		return fmt.Errorf("read existing port documentation: %w", err)
	}
	l.Documentation = text
	return s.putLabel(port, protocol, l)
}

// GetDocumentation returns the persisted documentation for (port, protocol),
// or the empty string if none was ever set.
func (s *Store) GetDocumentation(port int, protocol types.Protocol) (string, error) {
	l, err := s.getLabel(port, protocol)
	return l.Documentation, err
}
