package api

import (
	"encoding/hex"
	"net/http"

	"github.com/labstack/echo/v4"
)

// PostSignPayload 签名请求体，message 与 message_hash 二选一
type PostSignPayload struct {
	Message     string  `json:"message,omitempty"`      // 原文的 hex，将做 SHA-256
	MessageHash string  `json:"message_hash,omitempty"` // 32 字节哈希的 hex
	Quorum      []uint8 `json:"quorum,omitempty"`       // 缺省时自动选取
}

// SignResponse 签名响应体
type SignResponse struct {
	Signature string  `json:"signature"` // 64 字节签名的 hex
	GroupKey  string  `json:"group_key"` // 33 字节压缩群公钥的 hex
	Quorum    []uint8 `json:"quorum,omitempty"`
}

func (s *Server) postSign(c echo.Context) error {
	ctx := c.Request().Context()

	var body PostSignPayload
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if (body.Message == "") == (body.MessageHash == "") {
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of message and message_hash is required")
	}

	var (
		sig []byte
		err error
	)
	switch {
	case body.MessageHash != "":
		raw, decodeErr := hex.DecodeString(body.MessageHash)
		if decodeErr != nil || len(raw) != 32 {
			return echo.NewHTTPError(http.StatusBadRequest, "message_hash must be 32 bytes of hex")
		}
		var msgHash [32]byte
		copy(msgHash[:], raw)
		if len(body.Quorum) > 0 {
			sig, err = s.node.SignHashWith(ctx, msgHash, body.Quorum)
		} else {
			sig, err = s.node.SignHash(ctx, msgHash)
		}
	default:
		raw, decodeErr := hex.DecodeString(body.Message)
		if decodeErr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "message must be hex")
		}
		sig, err = s.node.Sign(ctx, raw)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("signing request failed")
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return c.JSON(http.StatusOK, &SignResponse{
		Signature: hex.EncodeToString(sig),
		GroupKey:  hex.EncodeToString(s.node.GroupKey()),
		Quorum:    body.Quorum,
	})
}

// PostEcdhPayload ECDH 请求体
type PostEcdhPayload struct {
	TargetPubkey string  `json:"target_pubkey"` // 32 字节 x-only 公钥的 hex
	Quorum       []uint8 `json:"quorum,omitempty"`
}

// EcdhResponse ECDH 响应体
type EcdhResponse struct {
	SharedSecret string `json:"shared_secret"` // 32 字节共享密钥的 hex
}

func (s *Server) postEcdh(c echo.Context) error {
	ctx := c.Request().Context()

	var body PostEcdhPayload
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	raw, err := hex.DecodeString(body.TargetPubkey)
	if err != nil || len(raw) != 32 {
		return echo.NewHTTPError(http.StatusBadRequest, "target_pubkey must be 32 bytes of hex")
	}

	var targetX [32]byte
	copy(targetX[:], raw)

	var secret [32]byte
	if len(body.Quorum) > 0 {
		secret, err = s.node.EcdhWith(ctx, targetX, body.Quorum)
	} else {
		secret, err = s.node.Ecdh(ctx, targetX)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("ecdh request failed")
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return c.JSON(http.StatusOK, &EcdhResponse{SharedSecret: hex.EncodeToString(secret[:])})
}

func (s *Server) getSessions(c echo.Context) error {
	records, err := s.status.ListRecords(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list sessions")
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) getPeers(c echo.Context) error {
	return c.JSON(http.StatusOK, s.node.Peers().List())
}

func (s *Server) getHealthy(c echo.Context) error {
	return c.String(http.StatusOK, "ready")
}
