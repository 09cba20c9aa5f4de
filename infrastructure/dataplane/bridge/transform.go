package bridge

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"ppn/application/ppn"
)

const (
	spiLength   = 4
	nonceLength = chacha20poly1305.NonceSize
	tagLength   = chacha20poly1305.Overhead
	// headerLength is the encapsulation prefix: SPI plus nonce.
	headerLength = spiLength + nonceLength
	// Overhead is the total bytes Seal adds to a payload.
	Overhead = headerLength + tagLength
)

// Transform seals uplink packets and opens downlink packets for one key
// epoch. Rekey swaps both AEADs in place; the nonce counter and the replay
// window restart with the new keys.
//
// Wire layout: [ 4B SPI ][ 12B nonce ][ ciphertext || 16B tag ].
type Transform struct {
	mu          sync.Mutex
	uplink      cipher.AEAD
	downlink    cipher.AEAD
	sendCounter uint64
	replay      replayWindow
}

func NewTransform(params ppn.TransformParams) (*Transform, error) {
	uplink, err := newAEAD(params.Suite, params.UplinkKey)
	if err != nil {
		return nil, fmt.Errorf("uplink cipher: %w", err)
	}
	downlink, err := newAEAD(params.Suite, params.DownlinkKey)
	if err != nil {
		return nil, fmt.Errorf("downlink cipher: %w", err)
	}
	return &Transform{uplink: uplink, downlink: downlink}, nil
}

func newAEAD(suite ppn.CipherSuite, key []byte) (cipher.AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid key size %d (want %d)", len(key), chacha20poly1305.KeySize)
	}
	if suite == ppn.SuiteAes256Gcm {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	}
	return chacha20poly1305.New(key)
}

// Rekey installs the next key epoch. Counters reset: the fresh keys make
// nonce reuse across epochs harmless.
func (t *Transform) Rekey(params ppn.TransformParams) error {
	uplink, err := newAEAD(params.Suite, params.UplinkKey)
	if err != nil {
		return fmt.Errorf("uplink cipher: %w", err)
	}
	downlink, err := newAEAD(params.Suite, params.DownlinkKey)
	if err != nil {
		return fmt.Errorf("downlink cipher: %w", err)
	}
	t.mu.Lock()
	t.uplink = uplink
	t.downlink = downlink
	t.sendCounter = 0
	t.replay = replayWindow{}
	t.mu.Unlock()
	return nil
}

// Seal encrypts buffer[headerLength : headerLength+n] in place and returns
// the full encapsulated packet. The buffer must have headerLength bytes of
// headroom in front of the payload and tagLength bytes of capacity behind it.
func (t *Transform) Seal(spi uint32, buffer []byte, n int) ([]byte, error) {
	if len(buffer) < headerLength+n || cap(buffer) < headerLength+n+tagLength {
		return nil, fmt.Errorf("seal: buffer too small: len=%d cap=%d payload=%d", len(buffer), cap(buffer), n)
	}

	t.mu.Lock()
	t.sendCounter++
	counter := t.sendCounter
	aead := t.uplink
	t.mu.Unlock()

	binary.BigEndian.PutUint32(buffer[:spiLength], spi)
	nonce := buffer[spiLength:headerLength]
	clear(nonce[:nonceLength-8])
	binary.BigEndian.PutUint64(nonce[nonceLength-8:], counter)

	plain := buffer[headerLength : headerLength+n]
	ct := aead.Seal(plain[:0], nonce, plain, buffer[:spiLength])
	return buffer[:headerLength+len(ct)], nil
}

// Open authenticates and decrypts an encapsulated packet in place and
// returns the payload. Replayed or reordered-beyond-window packets are
// rejected after the tag check, so a forgery can never advance the window.
func (t *Transform) Open(packet []byte) ([]byte, error) {
	if len(packet) < Overhead {
		return nil, fmt.Errorf("open: packet too short: %d", len(packet))
	}
	nonce := packet[spiLength:headerLength]
	counter := binary.BigEndian.Uint64(nonce[nonceLength-8:])

	t.mu.Lock()
	aead := t.downlink
	t.mu.Unlock()

	payload := packet[headerLength:]
	pt, err := aead.Open(payload[:0], nonce, payload, packet[:spiLength])
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	t.mu.Lock()
	accepted := t.replay.accept(counter)
	t.mu.Unlock()
	if !accepted {
		return nil, fmt.Errorf("open: replayed counter %d", counter)
	}
	return pt, nil
}

// SPI reads the encapsulation SPI without decrypting.
func SPI(packet []byte) (uint32, bool) {
	if len(packet) < spiLength {
		return 0, false
	}
	return binary.BigEndian.Uint32(packet[:spiLength]), true
}

// replayWindow is a 64-packet sliding bitmap keyed by the nonce counter.
type replayWindow struct {
	highest uint64
	bitmap  uint64
}

func (w *replayWindow) accept(counter uint64) bool {
	if counter == 0 {
		return false
	}
	if counter > w.highest {
		shift := counter - w.highest
		if shift >= 64 {
			w.bitmap = 0
		} else {
			w.bitmap <<= shift
		}
		w.bitmap |= 1
		w.highest = counter
		return true
	}
	offset := w.highest - counter
	if offset >= 64 {
		return false
	}
	mask := uint64(1) << offset
	if w.bitmap&mask != 0 {
		return false
	}
	w.bitmap |= mask
	return true
}
