package store

import (
	"path/filepath"
	"testing"

	"github.com/berfenger/motion2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltStoreKnownDevices(t *testing.T) {

	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "motion2mqtt.db")
	s, err := NewBoltStore(path)
	require.NoError(t, err)

	devices, err := s.KnownDevices("home")
	assert.NoError(err)
	assert.Empty(devices)

	saved := []domain.KnownDevice{{
		Mac:       "f0:8a:d2:00:00:11",
		DeviceId:  "motion_blind_f08ad2000011",
		CoverIds:  []string{"motion_f08ad2000011"},
		SensorIds: []string{"f08ad2000011_rssi"},
	}}
	require.NoError(t, s.SaveKnownDevices("home", saved))
	require.NoError(t, s.Close())

	// survives a reopen
	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	devices, err = s.KnownDevices("home")
	assert.NoError(err)
	assert.Equal(saved, devices)

	other, err := s.KnownDevices("office")
	assert.NoError(err)
	assert.Empty(other)
}

func TestMemoryStoreKnownDevices(t *testing.T) {

	s := NewMemoryStore()
	saved := []domain.KnownDevice{{Mac: "a"}}
	require.NoError(t, s.SaveKnownDevices("home", saved))
	saved[0].Mac = "b"

	devices, err := s.KnownDevices("home")
	assert.NoError(t, err)
	assert.Equal(t, "a", devices[0].Mac)
}
