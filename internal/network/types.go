package network

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

type MessageType string

const (
	MessageHeartbeat  MessageType = "HEARTBEAT"
	MessageClaim      MessageType = "CLAIM"
	MessageSigned     MessageType = "SIGNED"
	MessageMinted     MessageType = "MINTED"
	MessageMintFailed MessageType = "MINT_FAILED"
)

var (
	ErrBadSignature = errors.New("bad message signature")
	ErrUnknownPeer  = errors.New("unknown validator")
	ErrNoPeerKey    = errors.New("no identity key registered for validator")
	ErrOwnMessage   = errors.New("message claims this validator's id")
)

// InsufficientQuorumError reports how many matching messages were seen.
type InsufficientQuorumError struct {
	Type     MessageType
	Required int
	Actual   int
}

func (e *InsufficientQuorumError) Error() string {
	return fmt.Sprintf("insufficient %s messages: need %d, have %d", e.Type, e.Required, e.Actual)
}

// ConsensusMessage is exchanged between validators through POST /message.
type ConsensusMessage struct {
	ID          string          `json:"id"`
	ValidatorID int             `json:"validator_id"`
	Type        MessageType     `json:"msg_type"`
	Data        json.RawMessage `json:"data"`
	Signature   string          `json:"signature,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

func (m *ConsensusMessage) digest() []byte {
	var buf [8]byte
	h := crypto.NewKeccakState()
	h.Write([]byte(m.ID))
	binary.BigEndian.PutUint64(buf[:], uint64(m.ValidatorID))
	h.Write(buf[:])
	h.Write([]byte(m.Type))
	h.Write(m.Data)
	binary.BigEndian.PutUint64(buf[:], uint64(m.Timestamp))
	h.Write(buf[:])
	return h.Sum(nil)
}

// Sign sets the signature with the validator's identity key.
func (m *ConsensusMessage) Sign(key *ecdsa.PrivateKey) error {
	sig, err := crypto.Sign(m.digest(), key)
	if err != nil {
		return fmt.Errorf("failed to sign message: %w", err)
	}
	m.Signature = hex.EncodeToString(sig)
	return nil
}

// Verify checks the signature against a compressed or uncompressed public key.
func (m *ConsensusMessage) Verify(publicKey []byte) error {
	sig, err := hex.DecodeString(m.Signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return ErrBadSignature
	}
	if !crypto.VerifySignature(publicKey, m.digest(), sig[:crypto.RecoveryIDOffset]) {
		return ErrBadSignature
	}
	return nil
}

// Decode unmarshals the payload.
func (m *ConsensusMessage) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

type PartySignupRequest struct {
	ValidatorID int    `json:"validator_id"`
	Intent      string `json:"intent"`
}

type PartySignupResponse struct {
	Number int  `json:"number"`
	Ready  bool `json:"ready"`
}

type HeartbeatPayload struct {
	Status  string `json:"status"`
	Address string `json:"address"`
}

// PeerStatus is the public view of a peer table entry.
type PeerStatus struct {
	ID       int       `json:"id"`
	URL      string    `json:"url"`
	Alive    bool      `json:"alive"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

type peer struct {
	id        int
	url       string
	publicKey []byte
	lastSeen  time.Time
}

type BroadcastResult struct {
	Sent   int
	Failed int
}
