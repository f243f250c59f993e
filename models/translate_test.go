package models_test

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"relay-node/models"
	"relay-node/node"
	"relay-node/testutil"
)

const pubkeyHex = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func requireValidation(t *testing.T, err error, field string) {
	t.Helper()
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	require.Equal(t, field, verr.Field)
}

func TestParseOpenChannelScalesAmounts(t *testing.T) {
	for _, sats := range []uint64{1, 20_000, 16_777_215, math.MaxUint64 / 1000} {
		args, err := models.ParseOpenChannel(&models.OpenChannelRequest{
			Pubkey:      pubkeyHex,
			IPPort:      "127.0.0.1:9735",
			FundingSats: sats,
			PushSats:    sats / 2,
		})
		require.NoError(t, err)
		require.Equal(t, sats*1000, args.FundingMsat)
		require.Equal(t, (sats/2)*1000, args.PushMsat)
		require.Equal(t, pubkeyHex, args.NodeID.String())
	}
}

func TestParseOpenChannelInvalid(t *testing.T) {
	base := models.OpenChannelRequest{Pubkey: pubkeyHex, IPPort: "127.0.0.1:9735", FundingSats: 100_000}

	req := base
	req.IPPort = "not-an-address"
	_, err := models.ParseOpenChannel(&req)
	requireValidation(t, err, "ip_port")

	req = base
	req.Pubkey = "02abcd"
	_, err = models.ParseOpenChannel(&req)
	requireValidation(t, err, "pubkey")

	req = base
	req.FundingSats = 0
	_, err = models.ParseOpenChannel(&req)
	requireValidation(t, err, "funding_sats")

	req = base
	req.PushSats = base.FundingSats + 1
	_, err = models.ParseOpenChannel(&req)
	requireValidation(t, err, "push_sats")

	req = base
	req.FundingSats = math.MaxUint64/1000 + 1
	_, err = models.ParseOpenChannel(&req)
	requireValidation(t, err, "funding_sats")
}

func TestParseConnectPeer(t *testing.T) {
	args, err := models.ParseConnectPeer(&models.ConnectPeerRequest{Pubkey: pubkeyHex, IPPort: "[::1]:9735"})
	require.NoError(t, err)
	require.Equal(t, node.AddressTCPIPv6, args.Address.Kind)

	_, err = models.ParseConnectPeer(&models.ConnectPeerRequest{Pubkey: pubkeyHex, IPPort: "localhost"})
	requireValidation(t, err, "ip_port")
}

func TestParseGetInvoice(t *testing.T) {
	args, err := models.ParseGetInvoice(&models.GetInvoiceRequest{AmountSats: 2500, Description: "coffee", ExpirySecs: 3600})
	require.NoError(t, err)
	require.Equal(t, uint64(2_500_000), args.AmountMsat)
	require.Equal(t, "coffee", args.Description)
	require.Equal(t, uint32(3600), args.ExpirySecs)

	_, err = models.ParseGetInvoice(&models.GetInvoiceRequest{AmountSats: 0})
	requireValidation(t, err, "amount_sats")

	_, err = models.ParseGetInvoice(&models.GetInvoiceRequest{AmountSats: 1, Description: strings.Repeat("x", 640)})
	requireValidation(t, err, "description")
}

func TestParsePayInvoice(t *testing.T) {
	inv := testutil.NewInvoice(t, &chaincfg.RegressionNetParams, 42_000, "test")

	got, err := models.ParsePayInvoice(&models.PayInvoiceRequest{Invoice: inv.Encoded}, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.Equal(t, node.PaymentHash(inv.Hash), got.PaymentHash)
	require.Equal(t, uint64(42_000), *got.AmountMsat)

	// wrong network
	_, err = models.ParsePayInvoice(&models.PayInvoiceRequest{Invoice: inv.Encoded}, &chaincfg.MainNetParams)
	requireValidation(t, err, "invoice")

	_, err = models.ParsePayInvoice(&models.PayInvoiceRequest{Invoice: "lnbc1garbage"}, &chaincfg.RegressionNetParams)
	requireValidation(t, err, "invoice")

	amountless := testutil.NewInvoice(t, &chaincfg.RegressionNetParams, 0, "any")
	_, err = models.ParsePayInvoice(&models.PayInvoiceRequest{Invoice: amountless.Encoded}, &chaincfg.RegressionNetParams)
	requireValidation(t, err, "invoice")
}

func TestParsePaymentHash(t *testing.T) {
	raw := strings.Repeat("ab", 32)
	h, err := models.ParsePaymentHash(raw)
	require.NoError(t, err)
	require.Equal(t, raw, h.String())

	_, err = models.ParsePaymentHash(strings.Repeat("ab", 31))
	requireValidation(t, err, "payment_hash")

	_, err = models.ParsePaymentHash("xyz")
	requireValidation(t, err, "payment_hash")
}

func TestOutboundRendering(t *testing.T) {
	pk, err := node.PublicKeyFromHex(pubkeyHex)
	require.NoError(t, err)
	addr, err := node.ParseSocketAddress("10.0.0.1:9735")
	require.NoError(t, err)

	var chanID node.ChannelID
	chanID[0] = 0xAB
	uid, err := node.UserChannelIDFromDecimal("7")
	require.NoError(t, err)

	channels := models.NewListChannelsResponse([]node.ChannelDetails{{
		ChannelID:            chanID,
		CounterpartyNodeID:   pk,
		ChannelValueSats:     100_000,
		UserChannelID:        uid,
		OutboundCapacityMsat: 90_000_000,
		InboundCapacityMsat:  1_000,
		IsChannelReady:       true,
	}})
	b, err := json.Marshal(channels)
	require.NoError(t, err)
	require.JSONEq(t, `{"channels":[{
		"channel_id":"ab`+strings.Repeat("00", 31)+`",
		"counterparty_node_id":"`+pubkeyHex+`",
		"channel_value_sats":100000,
		"user_channel_id":7,
		"outbound_capacity_msat":90000000,
		"inbound_capacity_msat":1000,
		"is_channel_ready":true,
		"is_usable":false}]}`, string(b))

	peers := models.NewListPeersResponse([]node.PeerDetails{{NodeID: pk, Address: addr}})
	require.Equal(t, models.Peer{NodeID: pubkeyHex, Address: "10.0.0.1:9735"}, peers.Peers[0])

	empty, err := json.Marshal(models.NewListPeersResponse(nil))
	require.NoError(t, err)
	require.Equal(t, `{"peers":[]}`, string(empty))
}

func TestNewGetPaymentResponse(t *testing.T) {
	pending := models.NewGetPaymentResponse(&node.PaymentDetails{Status: node.PaymentPending})
	b, err := json.Marshal(pending)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"pending","preimage":null}`, string(b))

	var pre node.PaymentPreimage
	pre[31] = 0x0F
	done := models.NewGetPaymentResponse(&node.PaymentDetails{Status: node.PaymentSucceeded, Preimage: &pre})
	require.Equal(t, "succeeded", done.Status)
	require.Equal(t, hex.EncodeToString(pre[:]), *done.Preimage)

	failed := models.NewGetPaymentResponse(&node.PaymentDetails{Status: node.PaymentFailed})
	require.Equal(t, "failed", failed.Status)
}
