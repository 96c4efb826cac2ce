package security

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/ember-service/internal/core/domain"
)

type fakeAppKeys struct {
	valid  bool
	appFID int64
	err    error

	gotFID int64
	gotKey string
}

func (f *fakeAppKeys) VerifyAppKey(_ context.Context, fid int64, key string) (bool, int64, error) {
	f.gotFID, f.gotKey = fid, key
	return f.valid, f.appFID, f.err
}

type signer struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newSigner(t *testing.T) signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return signer{pub: pub, priv: priv}
}

func (s signer) key() string {
	return "0x" + hex.EncodeToString(s.pub)
}

func b64(v any) string {
	raw, _ := json.Marshal(v)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// envelope signe header.payload et renvoie le corps JSON du webhook
func (s signer) envelope(t *testing.T, header, payload any) []byte {
	t.Helper()
	h, p := b64(header), b64(payload)
	sig := ed25519.Sign(s.priv, []byte(h+"."+p))
	body, err := json.Marshal(map[string]string{
		"header":    h,
		"payload":   p,
		"signature": base64.RawURLEncoding.EncodeToString(sig),
	})
	require.NoError(t, err)
	return body
}

func requireKind(t *testing.T, err error, kind domain.VerifyErrorKind) {
	t.Helper()
	ve, ok := domain.AsVerifyError(err)
	require.True(t, ok, "expected a VerifyError, got %v", err)
	assert.Equal(t, kind, ve.Kind)
}

func TestJFSVerifier_Valid(t *testing.T) {
	s := newSigner(t)
	keys := &fakeAppKeys{valid: true, appFID: 9152}
	v := NewJFSVerifier(keys)

	body := s.envelope(t,
		map[string]any{"fid": 42, "type": "app_key", "key": s.key()},
		map[string]any{
			"event":               "frame_added",
			"notificationDetails": map[string]string{"url": "https://api.warpcast.com/v1/frame-notifications", "token": "tok"},
		},
	)

	got, err := v.Verify(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.FID)
	assert.Equal(t, int64(9152), got.AppFID)
	assert.Equal(t, domain.EventFrameAdded, got.Event.Event)
	require.NotNil(t, got.Event.NotificationDetails)
	assert.Equal(t, "tok", got.Event.NotificationDetails.Token)

	assert.Equal(t, int64(42), keys.gotFID)
	assert.Equal(t, s.key(), keys.gotKey)
}

func TestJFSVerifier_InvalidData(t *testing.T) {
	s := newSigner(t)
	other := newSigner(t)
	header := map[string]any{"fid": 42, "type": "app_key", "key": s.key()}
	payload := map[string]any{"event": "frame_removed"}

	forged := other.envelope(t, header, payload)

	cases := map[string][]byte{
		"not json":        []byte("not json"),
		"missing fields":  []byte(`{"header":"abc"}`),
		"header not b64":  []byte(`{"header":"***","payload":"e30","signature":"e30"}`),
		"wrong type":      s.envelope(t, map[string]any{"fid": 42, "type": "custody", "key": s.key()}, payload),
		"zero fid":        s.envelope(t, map[string]any{"fid": 0, "type": "app_key", "key": s.key()}, payload),
		"short key":       s.envelope(t, map[string]any{"fid": 42, "type": "app_key", "key": "0xabcd"}, payload),
		"signed by other": forged,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			keys := &fakeAppKeys{valid: true}
			_, err := NewJFSVerifier(keys).Verify(context.Background(), body)
			requireKind(t, err, domain.InvalidData)
			assert.Zero(t, keys.gotFID, "hub is not queried for malformed envelopes")
		})
	}
}

func TestJFSVerifier_AppKey(t *testing.T) {
	s := newSigner(t)
	body := s.envelope(t,
		map[string]any{"fid": 42, "type": "app_key", "key": s.key()},
		map[string]any{"event": "frame_removed"},
	)

	t.Run("unknown key", func(t *testing.T) {
		_, err := NewJFSVerifier(&fakeAppKeys{valid: false}).Verify(context.Background(), body)
		requireKind(t, err, domain.InvalidAppKey)
	})

	t.Run("hub unavailable", func(t *testing.T) {
		hubErr := errors.New("hub timeout")
		_, err := NewJFSVerifier(&fakeAppKeys{err: hubErr}).Verify(context.Background(), body)
		requireKind(t, err, domain.VerifyAppKey)
		assert.ErrorIs(t, err, hubErr)
	})
}

func TestJFSVerifier_InvalidEventData(t *testing.T) {
	s := newSigner(t)
	header := map[string]any{"fid": 42, "type": "app_key", "key": s.key()}

	cases := map[string]any{
		"unknown event":             map[string]any{"event": "frame_exploded"},
		"enabled without details":   map[string]any{"event": "notifications_enabled"},
		"details without token":     map[string]any{"event": "frame_added", "notificationDetails": map[string]string{"url": "https://x.example"}},
		"details with relative url": map[string]any{"event": "frame_added", "notificationDetails": map[string]string{"url": "/notify", "token": "t"}},
		"payload not an object":     []int{1, 2},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewJFSVerifier(&fakeAppKeys{valid: true}).Verify(context.Background(), s.envelope(t, header, payload))
			requireKind(t, err, domain.InvalidEventData)
		})
	}
}

func TestDecodeSegment(t *testing.T) {
	for _, in := range []string{"e30", "e30="} {
		raw, err := decodeSegment(in)
		require.NoError(t, err)
		assert.Equal(t, "{}", string(raw))
	}
}
