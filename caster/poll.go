package caster

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"

	"github.com/evotools/contestd/common/types"
	"github.com/evotools/contestd/contest"
	"github.com/evotools/contestd/platform"
)

// PollAddress derives the vote-poll address for a contested name:
// a hash over the length-prefixed coordinate tuple (contract, document
// type, index name, partition value, name). Deterministic, so every
// voter targets the same poll for the same contest.
func PollAddress(coords platform.ContestCoordinates, name string) types.Identifier {
	h := sha256.New()
	writeField(h, coords.ContractID.Bytes())
	writeField(h, []byte(coords.DocumentType))
	writeField(h, []byte(coords.IndexName))
	writeField(h, []byte(coords.PartitionValue))
	writeField(h, []byte(name))

	var id types.Identifier
	copy(id[:], h.Sum(nil))
	return id
}

func writeField(h hash.Hash, field []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(field)))
	h.Write(length[:])
	h.Write(field)
}

// encodeVotePayload builds the byte form of a vote transition that is
// signed and broadcast: poll address, ballot choice, voter.
func encodeVotePayload(pollID types.Identifier, voterID types.Identifier, choice contest.VoteChoice) []byte {
	payload := make([]byte, 0, 2*types.IdentifierSize+32)
	payload = appendField(payload, pollID.Bytes())
	payload = appendField(payload, []byte(choice.String()))
	payload = appendField(payload, voterID.Bytes())
	return payload
}

func appendField(dst, field []byte) []byte {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(field)))
	dst = append(dst, length[:]...)
	return append(dst, field...)
}
