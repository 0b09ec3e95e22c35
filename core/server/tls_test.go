package server

import (
	"crypto/tls"
	"testing"
)

// TestBuildTLSConfigDefaults tests the baseline protocol floor
func TestBuildTLSConfigDefaults(t *testing.T) {
	conf, err := buildTLSConfig(&certHolder{}, false, nil)
	if err != nil {
		t.Fatalf("buildTLSConfig: %v", err)
	}
	if conf.MinVersion != tls.VersionTLS12 {
		t.Errorf("Expected TLS 1.2 floor, got %x", conf.MinVersion)
	}
	if conf.GetCertificate == nil {
		t.Error("Expected per-handshake certificate callback")
	}

	old, err := buildTLSConfig(&certHolder{}, true, nil)
	if err != nil {
		t.Fatalf("buildTLSConfig old: %v", err)
	}
	if old.MinVersion != tls.VersionTLS10 {
		t.Errorf("Expected TLS 1.0 floor with old TLS enabled, got %x", old.MinVersion)
	}
}

// TestTLSOptionDirectives tests the supported option directives
func TestTLSOptionDirectives(t *testing.T) {
	opts := []TLSOption{
		{Directive: "MinProtocol", Value: "TLSv1.3"},
		{Directive: "MaxProtocol", Value: "TLSv1.3"},
		{Directive: "ALPNProtocols", Value: "h2,http/1.1"},
		{Directive: "ClientAuth", Value: "request"},
		{Directive: "CipherString", Value: "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256"},
	}
	conf, err := buildTLSConfig(&certHolder{}, false, opts)
	if err != nil {
		t.Fatalf("buildTLSConfig: %v", err)
	}
	if conf.MinVersion != tls.VersionTLS13 || conf.MaxVersion != tls.VersionTLS13 {
		t.Errorf("Expected pinned TLS 1.3, got %x..%x", conf.MinVersion, conf.MaxVersion)
	}
	if len(conf.NextProtos) != 2 || conf.NextProtos[0] != "h2" {
		t.Errorf("Expected ALPN list, got %v", conf.NextProtos)
	}
	if conf.ClientAuth != tls.RequestClientCert {
		t.Errorf("Expected RequestClientCert, got %v", conf.ClientAuth)
	}
	if len(conf.CipherSuites) != 2 {
		t.Errorf("Expected 2 cipher suites, got %v", conf.CipherSuites)
	}
}

// TestTLSOptionErrors tests rejection of unknown directives and values
func TestTLSOptionErrors(t *testing.T) {
	tests := []TLSOption{
		{Directive: "Bogus", Value: "x"},
		{Directive: "MinProtocol", Value: "SSLv3"},
		{Directive: "ClientAuth", Value: "maybe"},
		{Directive: "CipherString", Value: "NOT_A_SUITE"},
		{Directive: "CipherString", Value: ""},
	}
	for _, opt := range tests {
		if _, err := buildTLSConfig(&certHolder{}, false, []TLSOption{opt}); err == nil {
			t.Errorf("Expected error for option %+v", opt)
		}
	}
}
