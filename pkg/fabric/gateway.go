// Package fabric connects to a Hyperledger Fabric gateway peer for read-only
// evaluation of the emergency profile chaincode.
package fabric

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/medrex/zeronet/pkg/config"
	"github.com/medrex/zeronet/pkg/logger"
)

// Gateway owns the gRPC connection and gateway session
type Gateway struct {
	conn     *grpc.ClientConn
	gw       *client.Gateway
	contract *client.Contract
}

// Connect dials the gateway peer with the configured client identity
func Connect(cfg *config.FabricConfig, evaluateTimeout time.Duration, log *logger.Logger) (*Gateway, error) {
	conn, err := newGrpcConnection(cfg)
	if err != nil {
		return nil, err
	}

	id, err := newIdentity(cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	sign, err := newSign(cfg.KeyPath)
	if err != nil {
		conn.Close()
		return nil, err
	}

	gw, err := client.Connect(
		id,
		client.WithSign(sign),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(evaluateTimeout),
		client.WithEndorseTimeout(15*time.Second),
		client.WithSubmitTimeout(5*time.Second),
		client.WithCommitStatusTimeout(time.Minute),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to gateway: %w", err)
	}

	log.WithComponent("fabric").WithFields(map[string]interface{}{
		"peer":      cfg.PeerEndpoint,
		"channel":   cfg.ChannelName,
		"chaincode": cfg.ChaincodeName,
	}).Info("Connected to Fabric gateway")

	return &Gateway{
		conn:     conn,
		gw:       gw,
		contract: gw.GetNetwork(cfg.ChannelName).GetContract(cfg.ChaincodeName),
	}, nil
}

// Contract returns the emergency profile contract
func (g *Gateway) Contract() *client.Contract {
	return g.contract
}

// Close ends the gateway session and the underlying connection
func (g *Gateway) Close() error {
	g.gw.Close()
	return g.conn.Close()
}

func newGrpcConnection(cfg *config.FabricConfig) (*grpc.ClientConn, error) {
	certificate, err := loadCertificate(cfg.TLSCertPath)
	if err != nil {
		return nil, err
	}

	certPool := x509.NewCertPool()
	certPool.AddCert(certificate)
	transportCredentials := credentials.NewClientTLSFromCert(certPool, cfg.GatewayPeer)

	conn, err := grpc.Dial(cfg.PeerEndpoint, grpc.WithTransportCredentials(transportCredentials))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return conn, nil
}

func newIdentity(cfg *config.FabricConfig) (*identity.X509Identity, error) {
	certificate, err := loadCertificate(cfg.CertPath)
	if err != nil {
		return nil, err
	}
	return identity.NewX509Identity(cfg.MSPID, certificate)
}

func loadCertificate(filename string) (*x509.Certificate, error) {
	certificatePEM, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	return identity.CertificateFromPEM(certificatePEM)
}

// newSign loads the first private key in keyDir
func newSign(keyDir string) (identity.Sign, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no private key in %s", keyDir)
	}

	privateKeyPEM, err := os.ReadFile(filepath.Join(keyDir, files[0].Name()))
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	privateKey, err := identity.PrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return identity.NewPrivateKeySign(privateKey)
}
