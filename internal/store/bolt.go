package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/motion2mqtt/internal/core/domain"
	"github.com/berfenger/motion2mqtt/internal/core/port"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketKnownDevices = []byte("known_devices")
)

// BoltStore persists known devices in a BoltDB file, one key per gateway.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKnownDevices)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) KnownDevices(gatewayId string) ([]domain.KnownDevice, error) {
	var devices []domain.KnownDevice
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKnownDevices)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketKnownDevices)
		}
		data := b.Get([]byte(gatewayId))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &devices)
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *BoltStore) SaveKnownDevices(gatewayId string, devices []domain.KnownDevice) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKnownDevices)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketKnownDevices)
		}
		data, err := json.Marshal(devices)
		if err != nil {
			return err
		}
		return b.Put([]byte(gatewayId), data)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore is used when no store path is configured. Removed devices are
// then only retracted while the bridge keeps running.
type MemoryStore struct {
	mu      sync.Mutex
	devices map[string][]domain.KnownDevice
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: map[string][]domain.KnownDevice{}}
}

func (s *MemoryStore) KnownDevices(gatewayId string) ([]domain.KnownDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.KnownDevice(nil), s.devices[gatewayId]...), nil
}

func (s *MemoryStore) SaveKnownDevices(gatewayId string, devices []domain.KnownDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[gatewayId] = append([]domain.KnownDevice(nil), devices...)
	return nil
}

var (
	_ port.KnownDeviceStore = (*BoltStore)(nil)
	_ port.KnownDeviceStore = (*MemoryStore)(nil)
)
