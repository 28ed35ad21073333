package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/config"
	"github.com/congo-pay/custody/internal/logging"
	"github.com/congo-pay/custody/internal/node"
)

type client struct {
	t   *testing.T
	app *fiber.App
}

func (c client) do(method, path string, body any, idempotencyKey string) (int, []byte) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := c.app.Test(req, -1)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, out
}

func (c client) expect(status int, method, path string, body any, key string) []byte {
	c.t.Helper()
	got, out := c.do(method, path, body, key)
	if got != status {
		c.t.Fatalf("%s %s: expected %d got %d: %s", method, path, status, got, out)
	}
	return out
}

func newTestServer(t *testing.T) (client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	cfg := config.Config{
		AppName:           "CustodyNode",
		AppEnv:            "test",
		Port:              "0",
		Parties:           []string{"issuer", "gateway-a", "gateway-b"},
		NotaryName:        "notary",
		KeySeed:           "server-test",
		AllowedCurrencies: []string{"USD"},
		IssuanceCeilings:  map[string]int64{"USD": 1_000_000},
		IdempotencyTTL:    0,
		ReservationTTL:    time.Minute,
	}
	n, err := node.New(context.Background(), node.Options{Cfg: cfg, Cache: cache, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })

	srv, err := New(cfg, nil, cache, n, logging.Discard())
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return client{t: t, app: srv.App()}, mr
}

func TestWalletLifecycleOverHTTP(t *testing.T) {
	c, _ := newTestServer(t)
	const api = "/api/v1/parties/"

	for _, gw := range []string{"gateway-a", "gateway-b"} {
		c.expect(fiber.StatusCreated, fiber.MethodPost, api+gw+"/issuers",
			map[string]string{"issuer": "issuer", "currency": "usd"}, "recognise-"+gw)
	}
	for _, w := range []struct{ id, owner string }{{"gw-a-usd", "gateway-a"}, {"gw-b-usd", "gateway-b"}} {
		c.expect(fiber.StatusCreated, fiber.MethodPost, api+"issuer/wallets", map[string]string{
			"wallet_id": w.id, "owner": w.owner, "currency": "USD", "type": "gateway_owned",
		}, "create-"+w.id)
		c.expect(fiber.StatusOK, fiber.MethodPost, api+"issuer/wallets/"+w.id+"/verify", nil, "verify-"+w.id)
	}

	issue := map[string]string{"wallet_id": "gw-a-usd", "amount": "100.00", "currency": "USD"}
	first := c.expect(fiber.StatusCreated, fiber.MethodPost, api+"issuer/payments/issue", issue, "issue-1")
	replay := c.expect(fiber.StatusCreated, fiber.MethodPost, api+"issuer/payments/issue", issue, "issue-1")
	if !bytes.Equal(first, replay) {
		t.Fatalf("replayed issuance should return the stored response")
	}

	out := c.expect(fiber.StatusCreated, fiber.MethodPost, api+"gateway-a/payments/transfer", map[string]string{
		"sender_wallet_id":    "gw-a-usd",
		"recipient_wallet_id": "gw-b-usd",
		"recipient":           "gateway-b",
		"amount":              "40",
		"currency":            "USD",
		"type":                "GATEWAY_TO_GATEWAY",
	}, "transfer-1")
	var transfer struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := json.Unmarshal(out, &transfer); err != nil {
		t.Fatalf("decode transfer: %v", err)
	}

	var wallet struct {
		Verified bool `json:"verified"`
		Balance  struct {
			Amount string `json:"amount"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(c.expect(fiber.StatusOK, fiber.MethodGet, api+"gateway-a/wallets/gw-a-usd", nil, ""), &wallet); err != nil {
		t.Fatalf("decode wallet: %v", err)
	}
	if wallet.Balance.Amount != "60.00" || !wallet.Verified {
		t.Fatalf("unexpected sender wallet %+v", wallet)
	}
	if err := json.Unmarshal(c.expect(fiber.StatusOK, fiber.MethodGet, api+"gateway-b/wallets/gw-b-usd", nil, ""), &wallet); err != nil {
		t.Fatalf("decode wallet: %v", err)
	}
	if wallet.Balance.Amount != "40.00" {
		t.Fatalf("unexpected recipient balance %s", wallet.Balance.Amount)
	}

	c.expect(fiber.StatusOK, fiber.MethodGet, api+"gateway-b/transactions/"+transfer.TransactionID, nil, "")

	var flows []json.RawMessage
	if err := json.Unmarshal(c.expect(fiber.StatusOK, fiber.MethodGet, api+"gateway-a/flows", nil, ""), &flows); err != nil {
		t.Fatalf("decode flows: %v", err)
	}
	if len(flows) != 0 {
		t.Fatalf("expected no suspended flows, got %d", len(flows))
	}
}

func TestErrorsCarryCodes(t *testing.T) {
	c, _ := newTestServer(t)

	status, out := c.do(fiber.MethodGet, "/api/v1/parties/ghost/wallets/w1", nil, "")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(out, &body); err != nil || body.Code != "not_found" {
		t.Fatalf("unexpected error body %s", out)
	}

	c.expect(fiber.StatusBadRequest, fiber.MethodPost, "/api/v1/parties/issuer/wallets",
		map[string]string{"wallet_id": "w1", "currency": "USD"}, "no-type")

	status, out = c.do(fiber.MethodPost, "/api/v1/parties/gateway-a/wallets/missing/fund", map[string]string{"amount": "1"}, "fund-1")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", status, out)
	}
}

func TestDirectoryAndHealth(t *testing.T) {
	c, _ := newTestServer(t)

	var parties []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(c.expect(fiber.StatusOK, fiber.MethodGet, "/api/v1/parties", nil, ""), &parties); err != nil {
		t.Fatalf("decode parties: %v", err)
	}
	if len(parties) != 4 {
		t.Fatalf("expected 4 parties, got %d", len(parties))
	}
	c.expect(fiber.StatusOK, fiber.MethodGet, "/api/v1/parties/notary", nil, "")
	c.expect(fiber.StatusOK, fiber.MethodGet, "/healthz", nil, "")
	c.expect(fiber.StatusOK, fiber.MethodGet, "/api/v1/ping", nil, "")
}
