// Package pumpportal is a websocket client for the PumpPortal data API's
// new-token stream.
package pumpportal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// DefaultURL is the public PumpPortal data endpoint.
const DefaultURL = "wss://pumpportal.fun/api/data"

// Command is a subscription request sent to the server.
type Command struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

// SubscribeNewToken asks for one frame per newly created token.
var SubscribeNewToken = Command{Method: "subscribeNewToken"}

// NewTokenMessage is a token-creation frame. Numeric fields the server omits
// decode as zero.
type NewTokenMessage struct {
	Signature             string          `json:"signature"`
	Mint                  string          `json:"mint"`
	TraderPublicKey       string          `json:"traderPublicKey"`
	TxType                string          `json:"txType"`
	InitialBuy            decimal.Decimal `json:"initialBuy"`
	SolAmount             decimal.Decimal `json:"solAmount"`
	BondingCurveKey       string          `json:"bondingCurveKey"`
	VTokensInBondingCurve decimal.Decimal `json:"vTokensInBondingCurve"`
	VSolInBondingCurve    decimal.Decimal `json:"vSolInBondingCurve"`
	MarketCapSol          decimal.Decimal `json:"marketCapSol"`
	Name                  string          `json:"name"`
	Symbol                string          `json:"symbol"`
	URI                   string          `json:"uri"`
	Pool                  string          `json:"pool"`
}

// ToDomain converts the frame to a TokenEvent stamped with receivedAt.
func (m NewTokenMessage) ToDomain(receivedAt time.Time) domain.TokenEvent {
	return domain.TokenEvent{
		AssetID:            m.Mint,
		Name:               m.Name,
		Symbol:             m.Symbol,
		TraderPublicKey:    m.TraderPublicKey,
		TxType:             m.TxType,
		InitialTradeVolume: m.InitialBuy,
		TokensInCurve:      m.VTokensInBondingCurve,
		LiquidityPoolSize:  m.VSolInBondingCurve,
		MarketCap:          m.MarketCapSol,
		URI:                m.URI,
		Signature:          m.Signature,
		ReceivedAt:         receivedAt,
	}
}

// FrameKind classifies an inbound frame.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameAck
	FrameToken
)

func (k FrameKind) String() string {
	switch k {
	case FrameAck:
		return "ack"
	case FrameToken:
		return "token"
	default:
		return "unknown"
	}
}

// Frame is a decoded inbound message.
type Frame struct {
	Kind    FrameKind
	Message string          // set for acks
	Token   NewTokenMessage // set for token frames
}

// Decode classifies raw. Frames carrying a "message" key are server
// acknowledgements; frames with a mint are token events; anything else is
// unknown. Malformed JSON is an error.
func Decode(raw []byte) (Frame, error) {
	raw = bytes.TrimSpace(raw)

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Frame{}, fmt.Errorf("pumpportal: decode frame: %w", err)
	}

	if msg, ok := probe["message"]; ok {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			s = string(msg)
		}
		return Frame{Kind: FrameAck, Message: s}, nil
	}

	if _, ok := probe["mint"]; !ok {
		return Frame{Kind: FrameUnknown}, nil
	}

	var tok NewTokenMessage
	if err := json.Unmarshal(raw, &tok); err != nil {
		return Frame{}, fmt.Errorf("pumpportal: decode token: %w", err)
	}
	if tok.Mint == "" {
		return Frame{Kind: FrameUnknown}, nil
	}
	return Frame{Kind: FrameToken, Token: tok}, nil
}
