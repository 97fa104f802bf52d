// Package derivation derives custody addresses from seeds with a keyed hash.
//
// A derived address is valid only for the bump that produced it, so the bump
// is kept alongside the record that owns the address and checked on every
// later load.
package derivation

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/samber/do/v2"
	"golang.org/x/crypto/blake2b"
)

const (
	TournamentSeed = "tournament"
	EscrowSeed     = "escrow"

	MaxBump = 255
)

var (
	ErrEmptySecret        = errors.New("derivation secret is empty")
	ErrNoViableBump       = errors.New("no viable bump for seeds")
	ErrDerivationMismatch = errors.New("address does not match seeds and bump")
)

type Deriver struct {
	key []byte
}

func NewDeriverService(i do.Injector) (*Deriver, error) {
	secret := do.MustInvokeNamed[string](i, "derivation-secret")

	return NewDeriver(secret)
}

func NewDeriver(secret string) (*Deriver, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	key := blake2b.Sum256([]byte(secret))

	return &Deriver{key: key[:]}, nil
}

// Derive returns the canonical address for seeds: the one produced by the
// highest bump whose digest lands in the reserved half of the address space.
func (d *Deriver) Derive(seeds ...[]byte) (string, uint8, error) {
	for bump := MaxBump; bump >= 0; bump-- {
		digest, err := d.digest(uint8(bump), seeds)
		if err != nil {
			return "", 0, err
		}

		if IsReserved(digest) {
			return base58.Encode(digest), uint8(bump), nil
		}
	}

	return "", 0, ErrNoViableBump
}

func (d *Deriver) Verify(address string, bump uint8, seeds ...[]byte) error {
	digest, err := d.digest(bump, seeds)
	if err != nil {
		return err
	}

	decoded, err := base58.Decode(address)
	if err != nil || !IsReserved(digest) || !bytes.Equal(decoded, digest) {
		return fmt.Errorf("%w: %s", ErrDerivationMismatch, address)
	}

	return nil
}

func (d *Deriver) TournamentAddress(tournamentID string) (string, uint8, error) {
	return d.Derive([]byte(TournamentSeed), []byte(tournamentID))
}

func (d *Deriver) EscrowAddress(tournamentID string) (string, uint8, error) {
	return d.Derive([]byte(EscrowSeed), []byte(tournamentID))
}

func (d *Deriver) VerifyEscrow(address string, bump uint8, tournamentID string) error {
	return d.Verify(address, bump, []byte(EscrowSeed), []byte(tournamentID))
}

func (d *Deriver) VerifyTournament(address string, bump uint8, tournamentID string) error {
	return d.Verify(address, bump, []byte(TournamentSeed), []byte(tournamentID))
}

// IsReserved reports whether digest lies in the derived half of the address space.
func IsReserved(digest []byte) bool {
	return len(digest) == blake2b.Size256 && digest[0]&0x80 == 0
}

func (d *Deriver) digest(bump uint8, seeds [][]byte) ([]byte, error) {
	h, err := blake2b.New256(d.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create hash: %w", err)
	}

	// seeds are length-prefixed so ("ab","c") and ("a","bc") never collide
	var prefix [4]byte

	for _, seed := range seeds {
		binary.BigEndian.PutUint32(prefix[:], uint32(len(seed))) //nolint:gosec
		h.Write(prefix[:])
		h.Write(seed)
	}

	h.Write([]byte{bump})

	return h.Sum(nil), nil
}
