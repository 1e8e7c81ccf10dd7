package certificate

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

var ErrMissingKey = errors.New("client certificate requires a private key")

// Manager holds the material used to reach the api server over https.
// The client key pair is optional: without it only the server is authenticated.
type Manager struct {
	rootCA *x509.CertPool
	cert   *x509.Certificate
	pair   *tls.Certificate
}

func New(caRootBlocks [][]byte, cert, privateKey []byte) (*Manager, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("cannot copy system certificate pool: %w", err)
	}

	for _, data := range caRootBlocks {
		if len(data) == 0 {
			continue
		}

		if ok := pool.AppendCertsFromPEM(data); !ok {
			return nil, fmt.Errorf("cannot append ca root certificate")
		}
	}

	m := &Manager{rootCA: pool}

	if len(cert) == 0 {
		return m, nil
	}

	if len(privateKey) == 0 {
		return nil, ErrMissingKey
	}

	if err := m.setCertificate(cert, privateKey); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager) setCertificate(cert, privateKey []byte) error {
	pair, err := tls.X509KeyPair(cert, privateKey)
	if err != nil {
		return fmt.Errorf("cannot create x509 key pair: %w", err)
	}

	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return fmt.Errorf("cannot parse certificate: %w", err)
	}

	pair.Leaf = leaf

	m.cert = leaf
	m.pair = &pair

	return nil
}

// HasClientCertificate returns true if a client key pair is presented to the server.
func (m *Manager) HasClientCertificate() bool {
	return m.pair != nil
}

// CommonName returns the common name of the client certificate or an empty string.
func (m *Manager) CommonName() string {
	if m.cert == nil {
		return ""
	}

	return m.cert.Subject.CommonName
}

func (m *Manager) TLSConfig() (*tls.Config, error) {
	config := &tls.Config{
		RootCAs:    m.rootCA,
		MinVersion: tls.VersionTLS12,
	}

	if m.pair != nil {
		config.Certificates = []tls.Certificate{*m.pair}
	}

	return config, nil
}
