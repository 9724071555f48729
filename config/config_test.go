package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ptp "github.com/ptpsync/ptpcore/protocol"
)

func TestDefaultProfileValues(t *testing.T) {
	c := Default()
	assert.Equal(t, ProfileDefault1588, c.Profile)
	assert.Equal(t, "E2E", c.DelayMechanism)
	assert.Equal(t, ptp.DelayMechanismE2E, c.DelayMechanismValue())
	assert.Equal(t, uint8(3), c.AnnounceReceiptTimeout)
}

func TestGPTPProfileUsesP2PAndFastIntervals(t *testing.T) {
	c := GPTP()
	assert.Equal(t, ProfileGPTP, c.Profile)
	assert.Equal(t, "P2P", c.DelayMechanism)
	assert.Equal(t, ptp.DelayMechanismP2P, c.DelayMechanismValue())
	assert.Equal(t, int8(-3), c.LogSyncInterval)
}

func TestAES67ProfileKeepsE2E(t *testing.T) {
	c := AES67()
	assert.Equal(t, ProfileAES67, c.Profile)
	assert.Equal(t, "E2E", c.DelayMechanism)
}

func TestIndustrialProfileTightensTimeout(t *testing.T) {
	c := Industrial()
	assert.Equal(t, ProfileIndustrial, c.Profile)
	assert.Equal(t, uint8(2), c.AnnounceReceiptTimeout)
	assert.Equal(t, "P2P", c.DelayMechanism)
}

func TestByNameResolvesAllProfiles(t *testing.T) {
	cases := map[ProfileName]ProfileName{
		"":                 ProfileDefault1588,
		ProfileDefault1588: ProfileDefault1588,
		ProfileGPTP:        ProfileGPTP,
		ProfileAES67:       ProfileAES67,
		ProfileIndustrial:  ProfileIndustrial,
	}
	for in, want := range cases {
		c, err := ByName(in)
		require.NoError(t, err)
		assert.Equal(t, want, c.Profile)
	}
}

func TestByNameRejectsUnknownProfile(t *testing.T) {
	_, err := ByName("bogus")
	assert.Error(t, err)
}

func TestReadConfigLayersOverrideOntoDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ptp.yaml")
	yamlContent := "domain_number: 4\npriority1: 200\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	c, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), c.DomainNumber)
	assert.Equal(t, uint8(200), c.Priority1)
	// untouched fields keep their Default() values
	assert.Equal(t, uint8(128), c.Priority2)
	assert.Equal(t, 16, c.ForeignMasterCapacity)
}

func TestReadConfigMissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
