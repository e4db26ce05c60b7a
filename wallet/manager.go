package wallet

import (
	"crypto/hmac"
	"crypto/sha512"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/ed25519"

	"github.com/evotools/contestd/common/types"
	"github.com/evotools/contestd/config"
)

var wLog = log15.New("module", "wallet")

// KeyMaterial is a delegated voting key resolved for one identity.
type KeyMaterial struct {
	KeyID      uint32
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Manager derives per-identity delegated voting keys from a bip39
// mnemonic seed. Only identities registered as voting identities
// resolve to key material.
type Manager struct {
	seed    []byte
	enabled map[types.Identifier]uint32
}

func New(cfg config.Wallet) (*Manager, error) {
	if !bip39.IsMnemonicValid(cfg.Mnemonic) {
		return nil, errors.New("invalid wallet mnemonic")
	}
	enabled := make(map[types.Identifier]uint32, len(cfg.VotingIdentities))
	for i, hexID := range cfg.VotingIdentities {
		id, err := types.HexToIdentifier(hexID)
		if err != nil {
			return nil, errors.Wrapf(err, "voting identity %d", i)
		}
		enabled[id] = uint32(i + 1)
	}
	wLog.Info("wallet loaded", "votingIdentities", len(enabled))
	return &Manager{
		seed:    bip39.NewSeed(cfg.Mnemonic, ""),
		enabled: enabled,
	}, nil
}

// ResolveVotingKey returns nil without error when the identity holds
// no delegated voting key.
func (m *Manager) ResolveVotingKey(id types.Identifier) (*KeyMaterial, error) {
	keyID, ok := m.enabled[id]
	if !ok {
		return nil, nil
	}
	mac := hmac.New(sha512.New, m.seed)
	mac.Write([]byte("contestd/voting/"))
	mac.Write(id.Bytes())
	derived := mac.Sum(nil)

	privateKey := ed25519.NewKeyFromSeed(derived[:ed25519.SeedSize])
	return &KeyMaterial{
		KeyID:      keyID,
		PublicKey:  privateKey.Public().(ed25519.PublicKey),
		PrivateKey: privateKey,
	}, nil
}
