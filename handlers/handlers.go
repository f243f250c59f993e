package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"relay-node/app"
	"relay-node/logger"
	"relay-node/models"
	"relay-node/node"
	"relay-node/workers"
)

// Handler contains the HTTP handlers of the control plane.
type Handler struct {
	State *app.State
}

// NewHandler creates and returns a new Handler instance
func NewHandler(s *app.State) *Handler {
	return &Handler{State: s}
}

// ConnectPeer handles POST /connect-peer
func (h *Handler) ConnectPeer(w http.ResponseWriter, r *http.Request) {
	const verb = "connect-peer"
	var req models.ConnectPeerRequest
	if !decode(w, r, verb, &req) {
		return
	}
	args, err := models.ParseConnectPeer(&req)
	if err != nil {
		writeError(w, verb, err)
		return
	}

	err = h.State.Exec(r.Context(), func(ctx context.Context, n node.Node) error {
		return n.Connect(ctx, args.NodeID, args.Address, false)
	})
	if err != nil {
		writeError(w, verb, err)
		return
	}

	logger.Logger.Info("Connected peer", zap.String("node_id", args.NodeID.String()), zap.String("address", args.Address.String()))
	writeJSON(w, http.StatusOK, models.ConnectPeerResponse{})
}

// ListPeers handles GET /peers
func (h *Handler) ListPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := app.Query(r.Context(), h.State, func(ctx context.Context, n node.Node) ([]node.PeerDetails, error) {
		return n.ListPeers(ctx)
	})
	if err != nil {
		writeError(w, "list-peers", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListPeersResponse(peers))
}

// FundingAddress handles GET /funding-address
func (h *Handler) FundingAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := app.Query(r.Context(), h.State, func(ctx context.Context, n node.Node) (string, error) {
		return n.NewOnchainAddress(ctx)
	})
	if err != nil {
		writeError(w, "funding-address", err)
		return
	}
	writeJSON(w, http.StatusOK, models.FundingAddressResponse{Address: addr})
}

// OpenChannel handles POST /channels. The node connects to the peer first
// when needed. The returned id is assigned by the node.
func (h *Handler) OpenChannel(w http.ResponseWriter, r *http.Request) {
	const verb = "open-channel"
	var req models.OpenChannelRequest
	if !decode(w, r, verb, &req) {
		return
	}
	args, err := models.ParseOpenChannel(&req)
	if err != nil {
		writeError(w, verb, err)
		return
	}

	id, err := app.Query(r.Context(), h.State, func(ctx context.Context, n node.Node) (node.UserChannelID, error) {
		return n.ConnectOpenChannel(ctx, args.NodeID, args.Address, args.FundingMsat, args.PushMsat, true)
	})
	if err != nil {
		writeError(w, verb, err)
		return
	}

	logger.Logger.Info("Channel open requested",
		zap.String("counterparty", args.NodeID.String()),
		zap.Uint64("funding_msat", args.FundingMsat),
		zap.Stringer("user_channel_id", id))
	writeJSON(w, http.StatusOK, models.OpenChannelResponse{UserChannelID: id})
}

// ListChannels handles GET /channels
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := app.Query(r.Context(), h.State, func(ctx context.Context, n node.Node) ([]node.ChannelDetails, error) {
		return n.ListChannels(ctx)
	})
	if err != nil {
		writeError(w, "list-channels", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListChannelsResponse(channels))
}

// PayInvoice handles POST /pay-invoice. It answers once the payment is
// dispatched, not when it completes.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	const verb = "pay-invoice"
	var req models.PayInvoiceRequest
	if !decode(w, r, verb, &req) {
		return
	}
	invoice, err := models.ParsePayInvoice(&req, h.State.Network())
	if err != nil {
		writeError(w, verb, err)
		return
	}

	hash, err := app.Query(r.Context(), h.State, func(ctx context.Context, n node.Node) (node.PaymentHash, error) {
		return n.SendPayment(ctx, invoice)
	})
	if err != nil {
		writeError(w, verb, err)
		return
	}

	logger.Logger.Info("Payment dispatched", zap.Stringer("payment_hash", hash))
	writeJSON(w, http.StatusOK, models.PayInvoiceResponse{PaymentHash: hash.String()})
}

// GetInvoice handles POST /get-invoice
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	const verb = "get-invoice"
	var req models.GetInvoiceRequest
	if !decode(w, r, verb, &req) {
		return
	}
	args, err := models.ParseGetInvoice(&req)
	if err != nil {
		writeError(w, verb, err)
		return
	}

	invoice, err := app.Query(r.Context(), h.State, func(ctx context.Context, n node.Node) (string, error) {
		return n.ReceivePayment(ctx, args.AmountMsat, args.Description, args.ExpirySecs)
	})
	if err != nil {
		writeError(w, verb, err)
		return
	}
	writeJSON(w, http.StatusOK, models.GetInvoiceResponse{Invoice: invoice})
}

// Sync handles POST /sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	err := h.State.Exec(r.Context(), func(ctx context.Context, n node.Node) error {
		return n.SyncWallets(ctx)
	})
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, models.SyncResponse{Synced: true})
}

// GetBalance handles GET /balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := app.Query(r.Context(), h.State, func(ctx context.Context, n node.Node) (node.BalanceDetails, error) {
		return n.ListBalances(ctx)
	})
	if err != nil {
		writeError(w, "get-balance", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewGetBalanceResponse(b))
}

// GetPayment handles GET /get-payment/{payment_hash}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	const verb = "get-payment"
	hash, err := models.ParsePaymentHash(mux.Vars(r)["payment_hash"])
	if err != nil {
		writeError(w, verb, err)
		return
	}

	p, err := app.Query(r.Context(), h.State, func(ctx context.Context, n node.Node) (*node.PaymentDetails, error) {
		return n.Payment(ctx, hash)
	})
	if err != nil {
		writeError(w, verb, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewGetPaymentResponse(p))
}

func decode(w http.ResponseWriter, r *http.Request, verb string, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Logger.Error("Failed to decode request", zap.String("verb", verb), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request payload"})
		return false
	}
	return true
}

// statusFor classifies a failure. Anything unrecognized is the engine's
// fault and reported as a server error.
func statusFor(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, node.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, workers.ErrCanceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, verb string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.Logger.Error("Request failed", zap.String("verb", verb), zap.Int("code", code), zap.Error(err))
	} else {
		logger.Logger.Info("Request rejected", zap.String("verb", verb), zap.Int("code", code), zap.Error(err))
	}
	writeJSON(w, code, models.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Logger.Warn("Failed to write response", zap.Error(err))
	}
}
