package httpx

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
)

// TLSPolicy describes connection-level TLS behaviour: whether the server
// certificate is verified, an optional CA bundle replacing the system roots,
// and an optional client certificate for mutual TLS. The zero value verifies
// against the system roots with no client certificate.
type TLSPolicy struct {
	// InsecureSkipVerify disables server certificate verification entirely.
	InsecureSkipVerify bool
	// CABundle is the path of a PEM file whose certificates become the
	// trusted roots for server verification.
	CABundle string
	// ClientCert is the path of a PEM file holding both the client
	// certificate and its private key.
	ClientCert string
}

// Config builds the tls.Config realising the policy.
func (p TLSPolicy) Config() (*tls.Config, error) {
	cfg := &tls.Config{}

	if p.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true
	} else if p.CABundle != "" {
		pem, err := os.ReadFile(p.CABundle)
		if err != nil {
			return nil, fmt.Errorf("httpx: read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("httpx: no certificates found in CA bundle %s", p.CABundle)
		}
		cfg.RootCAs = pool
	}

	if p.ClientCert != "" {
		cert, err := tls.LoadX509KeyPair(p.ClientCert, p.ClientCert)
		if err != nil {
			return nil, fmt.Errorf("httpx: load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// Transport builds an http.Transport realising the policy.
func (p TLSPolicy) Transport() (*http.Transport, error) {
	cfg, err := p.Config()
	if err != nil {
		return nil, err
	}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: cfg,
	}, nil
}
