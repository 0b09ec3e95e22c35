package server

import (
	"crypto/tls"
	"fmt"
	"strings"
	"sync/atomic"
)

// certHolder owns one listener's TLS key material. The active certificate
// sits behind an atomic pointer consulted by GetCertificate on every
// handshake, so a reload swaps material for new handshakes without
// touching connections already established or mid-handshake.
type certHolder struct {
	certFile string
	keyFile  string
	cert     atomic.Pointer[tls.Certificate]
}

func newCertHolder(certFile, keyFile string) (*certHolder, error) {
	h := &certHolder{certFile: certFile, keyFile: keyFile}
	if err := h.reload(); err != nil {
		return nil, err
	}
	return h, nil
}

// reload re-reads the pair from disk. On failure the previously loaded
// certificate stays active.
func (h *certHolder) reload() error {
	pair, err := tls.LoadX509KeyPair(h.certFile, h.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair %s/%s: %w", h.certFile, h.keyFile, err)
	}
	h.cert.Store(&pair)
	return nil
}

func (h *certHolder) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return h.cert.Load(), nil
}

// buildTLSConfig assembles a listener's tls.Config from its policy flags
// and ordered option directives. Unknown directives reject the listener at
// create time.
func buildTLSConfig(h *certHolder, useOldTLS bool, opts []TLSOption) (*tls.Config, error) {
	conf := &tls.Config{
		GetCertificate: h.getCertificate,
		MinVersion:     tls.VersionTLS12,
	}
	if useOldTLS {
		conf.MinVersion = tls.VersionTLS10
	}
	for _, opt := range opts {
		if err := applyTLSOption(conf, opt); err != nil {
			return nil, err
		}
	}
	return conf, nil
}

func applyTLSOption(conf *tls.Config, opt TLSOption) error {
	switch opt.Directive {
	case "MinProtocol":
		v, err := tlsVersionFromName(opt.Value)
		if err != nil {
			return err
		}
		conf.MinVersion = v
	case "MaxProtocol":
		v, err := tlsVersionFromName(opt.Value)
		if err != nil {
			return err
		}
		conf.MaxVersion = v
	case "ALPNProtocols":
		conf.NextProtos = strings.Split(opt.Value, ",")
	case "CipherString":
		ids, err := cipherSuitesFromNames(opt.Value)
		if err != nil {
			return err
		}
		conf.CipherSuites = ids
	case "ClientAuth":
		switch opt.Value {
		case "none":
			conf.ClientAuth = tls.NoClientCert
		case "request":
			conf.ClientAuth = tls.RequestClientCert
		case "require":
			conf.ClientAuth = tls.RequireAnyClientCert
		default:
			return fmt.Errorf("tls option ClientAuth: unknown value %q", opt.Value)
		}
	default:
		return fmt.Errorf("unknown tls option directive %q", opt.Directive)
	}
	return nil
}

// cipherSuitesFromNames resolves a colon-separated suite list against the
// secure suites the runtime implements. Unknown names reject the listener
// at create time rather than being silently ignored.
func cipherSuitesFromNames(value string) ([]uint16, error) {
	byName := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		byName[cs.Name] = cs.ID
	}
	var ids []uint16
	for _, name := range strings.Split(value, ":") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown or non-configurable cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("tls option CipherString: empty suite list")
	}
	return ids, nil
}

func tlsVersionFromName(name string) (uint16, error) {
	switch name {
	case "TLSv1", "TLSv1.0":
		return tls.VersionTLS10, nil
	case "TLSv1.1":
		return tls.VersionTLS11, nil
	case "TLSv1.2":
		return tls.VersionTLS12, nil
	case "TLSv1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unknown tls protocol version %q", name)
	}
}
