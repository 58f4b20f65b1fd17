package deploy

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"supplyledger/pkg/domain"
)

// ContractAddress derives the address of the nonce-th deployment made by
// deployer: the last 20 bytes of Keccak-256(deployer ‖ big-endian nonce).
func ContractAddress(deployer domain.Address, nonce uint64) domain.Address {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	h := sha3.NewLegacyKeccak256()
	h.Write(deployer.Bytes())
	h.Write(n[:])
	return domain.AddressFromBytes(h.Sum(nil))
}
