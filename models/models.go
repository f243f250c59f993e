package models

import "relay-node/node"

type ConnectPeerRequest struct {
	Pubkey string `json:"pubkey"`  // hex compressed public key
	IPPort string `json:"ip_port"` // host:port
}

type ConnectPeerResponse struct{}

type Peer struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

type ListPeersResponse struct {
	Peers []Peer `json:"peers"`
}

type FundingAddressResponse struct {
	Address string `json:"address"`
}

type OpenChannelRequest struct {
	Pubkey      string `json:"pubkey"`
	IPPort      string `json:"ip_port"`
	FundingSats uint64 `json:"funding_sats"`
	PushSats    uint64 `json:"push_sats"`
}

type OpenChannelResponse struct {
	UserChannelID node.UserChannelID `json:"user_channel_id"` // JSON number, up to 128 bits
}

// Channel is the wire form of one channel.
type Channel struct {
	ChannelID            string             `json:"channel_id"`
	CounterpartyNodeID   string             `json:"counterparty_node_id"`
	ChannelValueSats     uint64             `json:"channel_value_sats"`
	UserChannelID        node.UserChannelID `json:"user_channel_id"`
	OutboundCapacityMsat uint64             `json:"outbound_capacity_msat"`
	InboundCapacityMsat  uint64             `json:"inbound_capacity_msat"`
	IsChannelReady       bool               `json:"is_channel_ready"`
	IsUsable             bool               `json:"is_usable"`
}

type ListChannelsResponse struct {
	Channels []Channel `json:"channels"`
}

type PayInvoiceRequest struct {
	Invoice string `json:"invoice"`
}

type PayInvoiceResponse struct {
	PaymentHash string `json:"payment_hash"`
}

type GetInvoiceRequest struct {
	AmountSats  uint64 `json:"amount_sats"`
	Description string `json:"description"`
	ExpirySecs  uint32 `json:"expiry_secs"`
}

type GetInvoiceResponse struct {
	Invoice string `json:"invoice"`
}

type SyncResponse struct {
	Synced bool `json:"synced"`
}

type GetBalanceResponse struct {
	TotalOnchainBalanceSats     uint64 `json:"total_onchain_balance_sats"`
	SpendableOnchainBalanceSats uint64 `json:"spendable_onchain_balance_sats"`
}

type GetPaymentResponse struct {
	Status   string  `json:"status"`
	Preimage *string `json:"preimage"` // null until known
}

type ErrorResponse struct {
	Error string `json:"error"`
}
