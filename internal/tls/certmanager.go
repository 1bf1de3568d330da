package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/caddyserver/certmagic"
)

// Config selects the domains served over HTTPS and the ACME account.
type Config struct {
	Domains []string
	Email   string
	Staging bool
}

// CertManager manages automatic TLS certificates via certmagic for a fixed
// set of domains.
type CertManager struct {
	domains []string
	logger  *slog.Logger
	cfg     *certmagic.Config
}

// NewCertManager creates a CertManager for cfg.Domains.
func NewCertManager(c Config, logger *slog.Logger) (*CertManager, error) {
	if len(c.Domains) == 0 {
		return nil, fmt.Errorf("no TLS domains configured")
	}

	certmagic.DefaultACME.Email = c.Email
	certmagic.DefaultACME.Agreed = true
	if c.Staging {
		certmagic.DefaultACME.CA = certmagic.LetsEncryptStagingCA
	}

	cfg := certmagic.NewDefault()
	cm := &CertManager{domains: normalize(c.Domains), logger: logger, cfg: cfg}

	cfg.OnDemand = &certmagic.OnDemandConfig{
		DecisionFunc: cm.allowCert,
	}
	return cm, nil
}

func normalize(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

// allowCert is the on-demand decision function: only configured domains get
// certificates.
func (cm *CertManager) allowCert(_ context.Context, name string) error {
	if !slices.Contains(cm.domains, strings.ToLower(name)) {
		return fmt.Errorf("unknown domain: %s", name)
	}
	return nil
}

// Domains returns the managed domains.
func (cm *CertManager) Domains() []string {
	return cm.domains
}

// Serve obtains certificates for the configured domains, then serves srv over
// TLS on the HTTPS port until srv is shut down.
func (cm *CertManager) Serve(ctx context.Context, srv *http.Server) error {
	cm.logger.Info("starting TLS server", "domains", cm.domains)

	if err := cm.cfg.ManageSync(ctx, cm.domains); err != nil {
		return fmt.Errorf("manage domains: %w", err)
	}

	ln, err := tls.Listen("tcp", net.JoinHostPort("", fmt.Sprint(certmagic.HTTPSPort)), cm.cfg.TLSConfig())
	if err != nil {
		return fmt.Errorf("tls listen: %w", err)
	}

	cm.logger.Info("serving HTTPS", "port", certmagic.HTTPSPort)
	return srv.Serve(ln)
}
