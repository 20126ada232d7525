package testutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

const (
	flagUserPresent  byte = 0x01
	flagUserVerified byte = 0x04
	flagAttestedData byte = 0x40
)

// SoftCredential is a key pair held by SoftAuthenticator.
type SoftCredential struct {
	ID         []byte
	Key        *ecdsa.PrivateKey
	UserHandle []byte
}

// EncodedID returns the base64url (no padding) credential id.
func (c *SoftCredential) EncodedID() string {
	return base64.RawURLEncoding.EncodeToString(c.ID)
}

// SoftAuthenticator is a software platform authenticator (ECDSA P-256, "none"
// attestation) producing the JSON a browser would post back.
type SoftAuthenticator struct {
	RPID   string
	Origin string
}

// NewSoftAuthenticator creates an authenticator bound to rpID and origin.
func NewSoftAuthenticator(rpID, origin string) *SoftAuthenticator {
	return &SoftAuthenticator{RPID: rpID, Origin: origin}
}

// NewCredential generates a fresh key pair for userHandle.
func (a *SoftAuthenticator) NewCredential(userHandle []byte) (*SoftCredential, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	id := make([]byte, 32)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}
	return &SoftCredential{ID: id, Key: key, UserHandle: append([]byte(nil), userHandle...)}, nil
}

// Register creates a new credential and answers the registration challenge.
func (a *SoftAuthenticator) Register(challenge string, userHandle []byte) (*SoftCredential, []byte, error) {
	cred, err := a.NewCredential(userHandle)
	if err != nil {
		return nil, nil, err
	}
	body, err := a.Attest(cred, challenge)
	if err != nil {
		return nil, nil, err
	}
	return cred, body, nil
}

// Attest answers a registration challenge for an existing credential.
func (a *SoftAuthenticator) Attest(cred *SoftCredential, challenge string) ([]byte, error) {
	clientData, err := a.clientData("webauthn.create", challenge)
	if err != nil {
		return nil, err
	}

	coseKey, err := webauthncbor.Marshal(map[int]any{
		1:  int(webauthncose.EllipticKey),
		3:  int(webauthncose.AlgES256),
		-1: int(webauthncose.P256),
		-2: cred.Key.PublicKey.X.FillBytes(make([]byte, 32)),
		-3: cred.Key.PublicKey.Y.FillBytes(make([]byte, 32)),
	})
	if err != nil {
		return nil, err
	}

	authData := a.authData(flagUserPresent|flagUserVerified|flagAttestedData, 0)
	authData = append(authData, make([]byte, 16)...) // AAGUID
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(cred.ID)))
	authData = append(authData, cred.ID...)
	authData = append(authData, coseKey...)

	attestation, err := webauthncbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{
		"id":                      cred.EncodedID(),
		"rawId":                   cred.EncodedID(),
		"type":                    "public-key",
		"authenticatorAttachment": "platform",
		"clientExtensionResults":  map[string]any{},
		"response": map[string]any{
			"clientDataJSON":    encode(clientData),
			"attestationObject": encode(attestation),
			"transports":        []string{"internal"},
		},
	})
}

// Assert answers an authentication challenge, reporting counter as the
// authenticator's signature count.
func (a *SoftAuthenticator) Assert(cred *SoftCredential, challenge string, counter uint32) ([]byte, error) {
	clientData, err := a.clientData("webauthn.get", challenge)
	if err != nil {
		return nil, err
	}
	authData := a.authData(flagUserPresent|flagUserVerified, counter)

	clientHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte(nil), authData...), clientHash[:]...))
	signature, err := ecdsa.SignASN1(rand.Reader, cred.Key, digest[:])
	if err != nil {
		return nil, err
	}

	response := map[string]any{
		"clientDataJSON":    encode(clientData),
		"authenticatorData": encode(authData),
		"signature":         encode(signature),
	}
	if len(cred.UserHandle) > 0 {
		response["userHandle"] = encode(cred.UserHandle)
	}

	return json.Marshal(map[string]any{
		"id":                      cred.EncodedID(),
		"rawId":                   cred.EncodedID(),
		"type":                    "public-key",
		"authenticatorAttachment": "platform",
		"clientExtensionResults":  map[string]any{},
		"response":                response,
	})
}

func (a *SoftAuthenticator) clientData(ceremony, challenge string) ([]byte, error) {
	if challenge == "" {
		return nil, fmt.Errorf("empty challenge")
	}
	return json.Marshal(map[string]any{
		"type":        ceremony,
		"challenge":   challenge,
		"origin":      a.Origin,
		"crossOrigin": false,
	})
}

func (a *SoftAuthenticator) authData(flags byte, counter uint32) []byte {
	rpIDHash := sha256.Sum256([]byte(a.RPID))
	data := append([]byte(nil), rpIDHash[:]...)
	data = append(data, flags)
	return binary.BigEndian.AppendUint32(data, counter)
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
