package network

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// certValidity is the lifetime of a node certificate. A new one is
// generated at every start.
const certValidity = 365 * 24 * time.Hour

var (
	errNoPeerCert     = errors.New("no peer certificate")
	errNotEd25519Cert = errors.New("peer certificate does not carry an ed25519 key")
)

// newTLSConfig returns the TLS configuration shared by listening and
// dialing. There is no CA: a peer is its certificate key, and every
// certificate must be self-signed by that key.
func newTLSConfig(key ed25519.PrivateKey) (*tls.Config, error) {
	cert, err := selfSignedCert(key)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates:          []tls.Certificate{cert},
		ClientAuth:            tls.RequireAnyClientCert,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifySelfSigned,
		NextProtos:            []string{alpnProtocol},
		MinVersion:            tls.VersionTLS13,
	}, nil
}

// selfSignedCert issues a certificate for key, signed by key.
func selfSignedCert(key ed25519.PrivateKey) (tls.Certificate, error) {
	pub := key.Public().(ed25519.PublicKey)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial number:\n%w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: fmt.Sprintf("guardvault-%x", pub[:8])},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate:\n%w", err)
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse certificate:\n%w", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, nil
}

// verifySelfSigned rejects a peer whose leaf certificate is not an
// ed25519 certificate signed by its own key.
func verifySelfSigned(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return errNoPeerCert
	}

	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("parse peer certificate:\n%w", err)
	}

	if _, ok := cert.PublicKey.(ed25519.PublicKey); !ok {
		return errNotEd25519Cert
	}

	if err := cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
		return fmt.Errorf("peer certificate not self-signed:\n%w", err)
	}

	return nil
}

// peerKey returns the remote ed25519 key of an established connection,
// which is the peer's vault address.
func peerKey(state tls.ConnectionState) (ed25519.PublicKey, error) {
	if len(state.PeerCertificates) == 0 {
		return nil, errNoPeerCert
	}

	pub, ok := state.PeerCertificates[0].PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, errNotEd25519Cert
	}

	return pub, nil
}
