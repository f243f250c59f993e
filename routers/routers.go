package routers

import (
	"net/http"

	"github.com/gorilla/mux"

	"relay-node/handlers"
)

// RegisterRoutes sets up all the HTTP routes of the control plane.
// metricsHandler may be nil.
func RegisterRoutes(r *mux.Router, h *handlers.Handler, metricsHandler http.Handler) {

	// Connects to a peer without opening a channel
	r.HandleFunc("/connect-peer", h.ConnectPeer).Methods("POST")

	r.HandleFunc("/peers", h.ListPeers).Methods("GET")

	// Fresh on-chain address to fund the wallet
	r.HandleFunc("/funding-address", h.FundingAddress).Methods("GET")

	r.HandleFunc("/channels", h.OpenChannel).Methods("POST")
	r.HandleFunc("/channels", h.ListChannels).Methods("GET")

	// Dispatches a payment and returns its hash without waiting for the outcome
	r.HandleFunc("/pay-invoice", h.PayInvoice).Methods("POST")

	r.HandleFunc("/get-invoice", h.GetInvoice).Methods("POST")

	// Waits for the wallet to catch up with the chain
	r.HandleFunc("/sync", h.Sync).Methods("POST")

	r.HandleFunc("/balance", h.GetBalance).Methods("GET")

	r.HandleFunc("/get-payment/{payment_hash}", h.GetPayment).Methods("GET")

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods("GET")
	}
}
