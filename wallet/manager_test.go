package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ed25519"

	"github.com/evotools/contestd/common/types"
	"github.com/evotools/contestd/config"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	voterHex     = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
)

func TestResolveVotingKey(t *testing.T) {
	m, err := New(config.Wallet{
		Mnemonic:         testMnemonic,
		VotingIdentities: []string{voterHex},
	})
	require.NoError(t, err)

	voter, err := types.HexToIdentifier(voterHex)
	require.NoError(t, err)

	km, err := m.ResolveVotingKey(voter)
	require.NoError(t, err)
	require.NotNil(t, km)
	assert.Equal(t, uint32(1), km.KeyID)

	message := []byte("a vote transition")
	sig := ed25519.Sign(km.PrivateKey, message)
	assert.True(t, ed25519.Verify(km.PublicKey, message, sig))
}

func TestResolveVotingKeyUnknownIdentity(t *testing.T) {
	m, err := New(config.Wallet{Mnemonic: testMnemonic})
	require.NoError(t, err)

	km, err := m.ResolveVotingKey(types.Identifier{42})
	require.NoError(t, err)
	assert.Nil(t, km)
}

func TestDerivationIsDeterministic(t *testing.T) {
	cfg := config.Wallet{
		Mnemonic:         testMnemonic,
		VotingIdentities: []string{voterHex},
	}
	first, err := New(cfg)
	require.NoError(t, err)
	second, err := New(cfg)
	require.NoError(t, err)

	voter, err := types.HexToIdentifier(voterHex)
	require.NoError(t, err)

	km1, err := first.ResolveVotingKey(voter)
	require.NoError(t, err)
	km2, err := second.ResolveVotingKey(voter)
	require.NoError(t, err)
	assert.Equal(t, km1.PublicKey, km2.PublicKey)
	assert.Equal(t, km1.PrivateKey, km2.PrivateKey)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(config.Wallet{Mnemonic: "not a mnemonic"})
	assert.Error(t, err)

	_, err = New(config.Wallet{
		Mnemonic:         testMnemonic,
		VotingIdentities: []string{"nothex"},
	})
	assert.Error(t, err)
}
