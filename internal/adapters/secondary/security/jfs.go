package security

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/ports"
)

const headerTypeAppKey = "app_key"

// envelope est le JSON Farcaster Signature brut : trois chaînes base64url
type envelope struct {
	Header    string `json:"header"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type jfsHeader struct {
	FID  int64  `json:"fid"`
	Type string `json:"type"`
	Key  string `json:"key"` // "0x" + clé publique ed25519 en hex
}

// JFSVerifier vérifie la signature ed25519 de l'enveloppe puis demande au
// hub si la clé est bien une app key du fid.
type JFSVerifier struct {
	appKeys ports.AppKeyVerifier
}

func NewJFSVerifier(appKeys ports.AppKeyVerifier) *JFSVerifier {
	return &JFSVerifier{appKeys: appKeys}
}

func (v *JFSVerifier) Verify(ctx context.Context, body []byte) (*domain.VerifiedEvent, error) {
	// 1. Enveloppe
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&env); err != nil {
		return nil, domain.NewVerifyError(domain.InvalidData, "decode envelope: %w", err)
	}
	if env.Header == "" || env.Payload == "" || env.Signature == "" {
		return nil, domain.NewVerifyError(domain.InvalidData, "envelope requires header, payload and signature")
	}

	// 2. Header
	rawHeader, err := decodeSegment(env.Header)
	if err != nil {
		return nil, domain.NewVerifyError(domain.InvalidData, "decode header: %w", err)
	}
	var header jfsHeader
	if err := json.Unmarshal(rawHeader, &header); err != nil {
		return nil, domain.NewVerifyError(domain.InvalidData, "parse header: %w", err)
	}
	if header.FID <= 0 {
		return nil, domain.NewVerifyError(domain.InvalidData, "header fid must be positive")
	}
	if header.Type != headerTypeAppKey {
		return nil, domain.NewVerifyError(domain.InvalidData, "unsupported header type %q", header.Type)
	}
	pub, err := parseAppKey(header.Key)
	if err != nil {
		return nil, domain.NewVerifyError(domain.InvalidData, "parse app key: %w", err)
	}

	// 3. Signature sur "header.payload" (chaînes encodées)
	sig, err := decodeSegment(env.Signature)
	if err != nil {
		return nil, domain.NewVerifyError(domain.InvalidData, "decode signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize || !ed25519.Verify(pub, []byte(env.Header+"."+env.Payload), sig) {
		return nil, domain.NewVerifyError(domain.InvalidData, "invalid signature")
	}

	// 4. App key enregistrée côté hub ?
	valid, appFID, err := v.appKeys.VerifyAppKey(ctx, header.FID, strings.ToLower(header.Key))
	if err != nil {
		return nil, domain.NewVerifyError(domain.VerifyAppKey, "verify app key: %w", err)
	}
	if !valid {
		return nil, domain.NewVerifyError(domain.InvalidAppKey, "app key is not registered for fid %d", header.FID)
	}

	// 5. Événement
	event, err := decodeEvent(env.Payload)
	if err != nil {
		return nil, domain.NewVerifyError(domain.InvalidEventData, "%w", err)
	}

	return &domain.VerifiedEvent{FID: header.FID, AppFID: appFID, Event: *event}, nil
}

func decodeEvent(segment string) (*domain.WebhookEvent, error) {
	raw, err := decodeSegment(segment)
	if err != nil {
		return nil, err
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, err
	}
	if !event.Event.Valid() {
		return nil, fmt.Errorf("unknown event %q", event.Event)
	}

	details := event.NotificationDetails
	if event.Event == domain.EventNotificationsEnabled && details == nil {
		return nil, errors.New("notifications_enabled requires notificationDetails")
	}
	if details != nil {
		if details.Token == "" {
			return nil, errors.New("notificationDetails.token is empty")
		}
		u, err := url.Parse(details.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, errors.New("notificationDetails.url is not an absolute url")
		}
	}
	return &event, nil
}

func parseAppKey(key string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(key), "0x"))
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("app key must be 32 bytes")
	}
	return ed25519.PublicKey(raw), nil
}

// decodeSegment accepte le base64url avec ou sans padding
func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
