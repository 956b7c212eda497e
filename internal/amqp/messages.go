package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ProfileSyncMessage asks the worker to mirror one company profile. It carries
// only the key and version; the worker reloads the profile from the store.
type ProfileSyncMessage struct {
	WalletAddress string    `json:"wallet_address"`
	Version       int64     `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewProfileSyncMessage(wallet string, version int64) *ProfileSyncMessage {
	return &ProfileSyncMessage{
		WalletAddress: wallet,
		Version:       version,
		Timestamp:     time.Now(),
	}
}

func (m *ProfileSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ProfileSyncMessageFromJSON(data []byte) (*ProfileSyncMessage, error) {
	var msg ProfileSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.WalletAddress) == "" {
		return nil, errors.New("sync message without wallet address")
	}
	return &msg, nil
}
