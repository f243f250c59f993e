package repository

import (
	"encoding/json"
	"errors"
	"strings"

	"relay-node/db"
)

var (
	identityKey   = []byte("identity")
	channelPrefix = "channel:"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// IdentityRecord pins the node identity a data directory belongs to.
type IdentityRecord struct {
	NodeID    string `json:"node_id"`
	Network   string `json:"network"`
	CreatedAt int64  `json:"created_at"` // unix timestamp in ms
}

// ChannelRecord maps a funding outpoint to the correlation id returned by
// the open-channel call that created it.
type ChannelRecord struct {
	FundingOutpoint    string `json:"funding_outpoint"` // txid:index
	UserChannelID      string `json:"user_channel_id"`  // base 10
	CounterpartyNodeID string `json:"counterparty_node_id"`
	CreatedAt          int64  `json:"created_at"`
}

// It abstracts the storage layer from the node backend
type NodeRepositoryInterface interface {
	GetIdentity() (*IdentityRecord, error)
	PutIdentity(rec *IdentityRecord) error
	PutChannel(rec *ChannelRecord) error
	GetAllChannels() ([]*ChannelRecord, error)
}

// NodeRepository implements the NodeRepositoryInterface using LevelDB as the storage backend
type NodeRepository struct {
	db *db.LevelDB
}

// NewNodeRepository creates and returns a new NodeRepository instance
func NewNodeRepository(db *db.LevelDB) *NodeRepository {
	return &NodeRepository{db: db}
}

// GetIdentity returns the pinned identity, or ErrNotFound for a fresh data directory
func (r *NodeRepository) GetIdentity() (*IdentityRecord, error) {
	var rec IdentityRecord
	if err := r.getJSON(identityKey, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutIdentity stores the identity record
func (r *NodeRepository) PutIdentity(rec *IdentityRecord) error {
	return r.putJSON(identityKey, rec)
}

// PutChannel stores a channel record keyed by funding outpoint
func (r *NodeRepository) PutChannel(rec *ChannelRecord) error {
	return r.putJSON(channelKey(rec.FundingOutpoint), rec)
}

// GetAllChannels retrieves every channel record
func (r *NodeRepository) GetAllChannels() ([]*ChannelRecord, error) {
	iter := r.db.NewPrefixIterator([]byte(channelPrefix))
	defer iter.Release()

	var recs []*ChannelRecord
	for iter.Next() {
		var rec ChannelRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, iter.Error()
}

func channelKey(outpoint string) []byte {
	return []byte(channelPrefix + strings.ToLower(outpoint))
}

func (r *NodeRepository) putJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.db.Put(key, data)
}

func (r *NodeRepository) getJSON(key []byte, v interface{}) error {
	data, err := r.db.Get(key)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
