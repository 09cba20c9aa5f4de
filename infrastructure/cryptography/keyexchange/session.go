// Package keyexchange holds the per-connection key material the control
// plane negotiates: a fresh X25519 keypair plus client nonce, and the remote
// key material learned from egress provisioning. Transform keys for the
// packet datapath are derived from the two via HKDF.
package keyexchange

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"ppn/application/ppn"
)

const nonceSize = 16

var (
	infoUplink   = []byte("uplink key")
	infoDownlink = []byte("downlink key")
)

// ErrNoRemoteKeyMaterial is returned when transform keys are requested
// before egress provisioning supplied the remote public value.
var ErrNoRemoteKeyMaterial = errors.New("remote key material not set")

type Session struct {
	mu           sync.Mutex
	privateKey   [32]byte
	publicKey    [32]byte
	clientNonce  []byte
	downlinkSPI  uint32
	remotePublic []byte
	remoteNonce  []byte
}

// NewSession generates a fresh keypair, nonce and downlink SPI. Each rekey
// pass gets its own Session; key material is never reused across epochs.
func NewSession() (*Session, error) {
	s := &Session{clientNonce: make([]byte, nonceSize)}
	if _, err := io.ReadFull(rand.Reader, s.privateKey[:]); err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	public, err := curve25519.X25519(s.privateKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	copy(s.publicKey[:], public)

	if _, err := io.ReadFull(rand.Reader, s.clientNonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	var spi [4]byte
	if _, err := io.ReadFull(rand.Reader, spi[:]); err != nil {
		return nil, fmt.Errorf("generate spi: %w", err)
	}
	s.downlinkSPI = binary.BigEndian.Uint32(spi[:])
	return s, nil
}

// PublicValue returns the local X25519 public key sent to the backend.
func (s *Session) PublicValue() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.publicKey[:]...)
}

func (s *Session) ClientNonce() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.clientNonce...)
}

func (s *Session) DownlinkSPI() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downlinkSPI
}

// SetRemoteKeyMaterial installs the egress node's public value and nonce.
func (s *Session) SetRemoteKeyMaterial(public, nonce []byte) error {
	if len(public) != 32 {
		return fmt.Errorf("remote public value must be 32 bytes, got %d", len(public))
	}
	if len(nonce) == 0 {
		return errors.New("remote nonce is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remotePublic = append([]byte(nil), public...)
	s.remoteNonce = append([]byte(nil), nonce...)
	return nil
}

// TransformParams derives the uplink/downlink AEAD keys for the given suite.
// Both directions read from one HKDF chain salted with client||server nonce,
// so local and remote ends derive the same pair.
func (s *Session) TransformParams(suite ppn.CipherSuite) (ppn.TransformParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remotePublic == nil {
		return ppn.TransformParams{}, ErrNoRemoteKeyMaterial
	}
	shared, err := curve25519.X25519(s.privateKey[:], s.remotePublic)
	if err != nil {
		return ppn.TransformParams{}, fmt.Errorf("shared secret: %w", err)
	}

	salt := append(append([]byte(nil), s.clientNonce...), s.remoteNonce...)
	keySize := chacha20poly1305.KeySize // both suites use 256-bit keys

	uplink := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, infoUplink), uplink); err != nil {
		return ppn.TransformParams{}, fmt.Errorf("derive uplink key: %w", err)
	}
	downlink := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, infoDownlink), downlink); err != nil {
		return ppn.TransformParams{}, fmt.Errorf("derive downlink key: %w", err)
	}

	return ppn.TransformParams{UplinkKey: uplink, DownlinkKey: downlink, Suite: suite}, nil
}
