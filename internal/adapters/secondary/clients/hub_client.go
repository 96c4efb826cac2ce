package clients

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// HubClient vérifie les app keys auprès d'un hub Farcaster (Neynar par
// défaut) via /v1/onChainSignersByFid.
type HubClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHubClient(baseURL, apiKey string, httpClient *http.Client) *HubClient {
	return &HubClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// VerifyAppKey renvoie valid=false si la clé n'est pas un signer du fid.
// appFID est lu dans les metadata du signer quand elles sont décodables.
func (c *HubClient) VerifyAppKey(ctx context.Context, fid int64, appKey string) (bool, int64, error) {
	u := c.baseURL + "/v1/onChainSignersByFid?" + url.Values{"fid": {strconv.FormatInt(fid, 10)}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, 0, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, 0, fmt.Errorf("hub request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, 0, fmt.Errorf("read hub response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, 0, fmt.Errorf("hub: unexpected status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return false, 0, fmt.Errorf("hub: invalid json response")
	}

	events := gjson.GetBytes(body, "events")
	if !events.IsArray() {
		return false, 0, fmt.Errorf("hub: response has no events array")
	}

	for _, ev := range events.Array() {
		signer := ev.Get("signerEventBody")
		if !strings.EqualFold(signer.Get("key").String(), appKey) {
			continue
		}
		appFID := requestFIDFromMetadata(signer.Get("metadata").String())
		slog.Debug("App key verified", "fid", fid, "app_fid", appFID)
		return true, appFID, nil
	}
	return false, 0, nil
}

// requestFIDFromMetadata décode le SignedKeyRequestMetadata ABI-encodé
// (tuple dynamique : offset, puis requestFid en premier mot de 32 octets).
func requestFIDFromMetadata(metadata string) int64 {
	if metadata == "" {
		return 0
	}
	raw, err := base64.StdEncoding.DecodeString(metadata)
	if err != nil || len(raw) < 64 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(raw[56:64]))
}
