package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestParseGrantRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := GrantClaims{Phone: "+919876543210", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseGrant(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseGrantIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "phoneauth",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	grant, err := m.CreateGrant("u", "+919876543210")
	if err != nil {
		t.Fatalf("create grant: %v", err)
	}
	if _, err := m.ParseGrant(grant.Token); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	wrongIssuer := GrantClaims{Phone: "+919876543210", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	badIssuerTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongIssuer)
	badIssuer, _ := badIssuerTok.SignedString(priv)
	if _, err := m.ParseGrant(badIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := GrantClaims{Phone: "+919876543210", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "phoneauth",
		Audience:  gjwt.ClaimStrings{"other-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	badAudienceTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongAudience)
	badAudience, _ := badAudienceTok.SignedString(priv)
	if _, err := m.ParseGrant(badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	expWithinLeeway := GrantClaims{Phone: "+919876543210", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "phoneauth",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	withinTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, expWithinLeeway)
	within, _ := withinTok.SignedString(priv)
	if _, err := m.ParseGrant(within); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	expired := GrantClaims{Phone: "+919876543210", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "phoneauth",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-3 * time.Minute)),
	}}
	expiredTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, expired)
	expiredSigned, _ := expiredTok.SignedString(priv)
	if _, err := m.ParseGrant(expiredSigned); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseGrantUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := GrantClaims{Phone: "+919876543210", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseGrant(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	tok2 := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok2.Header["kid"] = "k1"
	good, _ := tok2.SignedString(priv1)
	if _, err := m.ParseGrant(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.ParseGrant(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func TestCreateGrantHS256RoundTrip(t *testing.T) {
	m, err := NewManager(Config{
		TTL:           10 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "phoneauth",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	fixed := time.Now().Truncate(time.Second)
	m.now = func() time.Time { return fixed }

	grant, err := m.CreateGrant("subject-1", "+919876543210")
	if err != nil {
		t.Fatalf("create grant: %v", err)
	}
	if grant.Subject != "subject-1" || !grant.ExpiresAt.Equal(fixed.Add(10*time.Minute)) {
		t.Fatalf("unexpected grant: %+v", grant)
	}

	claims, err := m.ParseGrant(grant.Token)
	if err != nil {
		t.Fatalf("parse grant: %v", err)
	}
	if claims.Subject != "subject-1" || claims.Phone != "+919876543210" || claims.Channel != "sms_otp" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}

	other, _ := m.CreateGrant("subject-1", "+919876543210")
	otherClaims, _ := m.ParseGrant(other.Token)
	if otherClaims.ID == claims.ID {
		t.Fatal("expected a fresh jti per grant")
	}
}

func TestCreateGrantTamperedSignatureFails(t *testing.T) {
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("secret-secret-secret-secret")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	grant, err := m.CreateGrant("s", "+919876543210")
	if err != nil {
		t.Fatalf("create grant: %v", err)
	}

	other, _ := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("another-secret-another-secret")})
	if _, err := other.ParseGrant(grant.Token); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestUnverifiedSubject(t *testing.T) {
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.RegisteredClaims{Subject: "user-42"})
	signed, err := tok.SignedString([]byte("whatever-key-whatever-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	sub, err := UnverifiedSubject(signed)
	if err != nil || sub != "user-42" {
		t.Fatalf("expected user-42, got %q (%v)", sub, err)
	}
	if _, err := UnverifiedSubject("opaque-token"); err == nil {
		t.Fatal("expected error for non-JWT token")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{TTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("k")},
		{TTL: time.Minute, SigningMethod: MethodHS256},
		{TTL: time.Minute, SigningMethod: "rs256", PrivateKey: []byte("k")},
		{TTL: time.Minute, SigningMethod: MethodEd25519},
		{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
