package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-threshold-engine/internal/config"
	"github.com/kashguard/go-threshold-engine/internal/frost"
	"github.com/kashguard/go-threshold-engine/internal/mpc/node"
	"github.com/kashguard/go-threshold-engine/internal/mpc/storage"
	"github.com/kashguard/go-threshold-engine/internal/transport"
)

// newTestServer 起一个 2-of-3 集群并把 HTTP 面挂在参与者 1 上
func newTestServer(t *testing.T) (*Server, []byte) {
	t.Helper()

	shares, groupKey, err := frost.GenerateKeyShares(2, 3)
	require.NoError(t, err)

	hub := transport.NewHub()
	cfg := node.Config{
		SignTimeout: 2 * time.Second,
		EcdhTimeout: 2 * time.Second,
		PingTimeout: time.Second,
		SessionTTL:  time.Minute,
		StatusTTL:   time.Minute,
	}

	status := storage.NewMemoryStore()
	var first *node.Node
	for _, share := range shares {
		link := hub.Link(share.ID, zerolog.Nop())
		n, err := node.New(zerolog.Nop(), share, link, status, cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = n.Close() })
		if share.ID == 1 {
			first = n
		}
	}

	return NewServer(zerolog.Nop(), first, status, config.API{ListenAddress: ":0"}), groupKey.SerializeCompressed()
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func hexToPubkey(s string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return secp256k1.ParsePubKey(raw)
}

func TestPostSignByHash(t *testing.T) {
	server, groupKey := newTestServer(t)

	msgHash := sha256.Sum256([]byte("http signing"))
	payload := `{"message_hash":"` + hex.EncodeToString(msgHash[:]) + `","quorum":[1,2]}`
	rec := doJSON(t, server, http.MethodPost, "/api/v1/mpc/sign", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SignResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, hex.EncodeToString(groupKey), resp.GroupKey)

	sig, err := hex.DecodeString(resp.Signature)
	require.NoError(t, err)
	require.Len(t, sig, 64)

	parsedKey, err := hexToPubkey(resp.GroupKey)
	require.NoError(t, err)
	assert.True(t, frost.VerifyBytes64(msgHash, sig, parsedKey))
}

func TestPostSignValidation(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/mpc/sign", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/mpc/sign", `{"message":"abc","message_hash":"def"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/mpc/sign", `{"message_hash":"deadbeef"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostEcdh(t *testing.T) {
	server, groupKey := newTestServer(t)

	// 用群公钥自身的 x 坐标作为目标，只验证 HTTP 管道
	target := hex.EncodeToString(groupKey[1:])
	rec := doJSON(t, server, http.MethodPost, "/api/v1/mpc/ecdh", `{"target_pubkey":"`+target+`","quorum":[1,3]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp EcdhResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	secret, err := hex.DecodeString(resp.SharedSecret)
	require.NoError(t, err)
	assert.Len(t, secret, 32)
}

func TestGetSessionsAfterSigning(t *testing.T) {
	server, _ := newTestServer(t)

	msgHash := sha256.Sum256([]byte("audited"))
	payload := `{"message_hash":"` + hex.EncodeToString(msgHash[:]) + `","quorum":[1,2]}`
	rec := doJSON(t, server, http.MethodPost, "/api/v1/mpc/sign", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/api/v1/mpc/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "completed")
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/-/healthy", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
