package lnd

import (
	"fmt"
	"os"

	"github.com/lightningnetwork/lnd/macaroons"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"gopkg.in/macaroon.v2"
)

const maxMsgRecvSize = 200 * 1024 * 1024

// dial opens a gRPC connection to lnd. A nil macaroon yields a connection
// usable only for the wallet unlocker and state services.
func dial(host, tlsCertPath string, mac *macaroon.Macaroon) (*grpc.ClientConn, error) {
	creds, err := credentials.NewClientTLSFromFile(tlsCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS cert: %w", err)
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxMsgRecvSize)),
	}
	if mac != nil {
		macCreds, err := macaroons.NewMacaroonCredential(mac)
		if err != nil {
			return nil, fmt.Errorf("failed to create macaroon credential: %w", err)
		}
		opts = append(opts, grpc.WithPerRPCCredentials(macCreds))
	}

	conn, err := grpc.Dial(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial lnd: %w", err)
	}
	return conn, nil
}

func readMacaroon(path string) (*macaroon.Macaroon, error) {
	macBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read macaroon: %w", err)
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal macaroon: %w", err)
	}
	return mac, nil
}
