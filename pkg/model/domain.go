package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Amounts on the wire are hex quantities in the smallest unit.

type NameResponse struct {
	Name          string         `json:"name"`
	Node          common.Hash    `json:"node"`
	Label         string         `json:"label,omitempty"`
	Parent        common.Hash    `json:"parent"`
	Owner         common.Address `json:"owner"`
	RecordStore   common.Address `json:"recordStore"`
	Approved      common.Address `json:"approved"`
	Expiry        uint64         `json:"expiry,omitempty"`
	TokenID       uint64         `json:"tokenId,omitempty"`
	Registered    bool           `json:"registered"`
	Available     bool           `json:"available"`
	Expired       bool           `json:"expired"`
	InGracePeriod bool           `json:"inGracePeriod"`
}

type PriceResponse struct {
	Label        string       `json:"label"`
	Node         common.Hash  `json:"node"`
	Duration     uint64       `json:"duration"`
	Price        *hexutil.Big `json:"price"`
	RenewalPrice *hexutil.Big `json:"renewalPrice"`
}

type BuyRequest struct {
	Label       string         `json:"label"`
	RecordStore common.Address `json:"recordStore"`
	Duration    uint64         `json:"duration"`
	Payment     *hexutil.Big   `json:"payment"`
}

type RegisterRequest struct {
	Label string `json:"label"`
	// Parent is a dotted name; empty means the root.
	Parent      string         `json:"parent,omitempty"`
	Owner       common.Address `json:"owner"`
	Duration    uint64         `json:"duration"`
	RecordStore common.Address `json:"recordStore"`
}

type RenewRequest struct {
	Duration uint64       `json:"duration"`
	Payment  *hexutil.Big `json:"payment"`
}

type TransferRequest struct {
	From common.Address `json:"from"`
	To   common.Address `json:"to"`
}

type PermitRequest struct {
	Node      common.Hash    `json:"node"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Nonce     uint64         `json:"nonce"`
	Deadline  uint64         `json:"deadline"`
	Signature hexutil.Bytes  `json:"signature"`
}

type RecordStoreRequest struct {
	RecordStore common.Address `json:"recordStore"`
}

// ApproveRequest names the single delegate allowed to move a name. The zero
// address clears it.
type ApproveRequest struct {
	Delegate common.Address `json:"delegate"`
}

type OperatorRequest struct {
	Operator common.Address `json:"operator"`
	Approved bool           `json:"approved"`
}

type OperatorResponse struct {
	Owner    common.Address `json:"owner"`
	Operator common.Address `json:"operator"`
	Approved bool           `json:"approved"`
}

// DomainResponse is one row of the domain listing, which is rebuilt at every
// checkpoint.
type DomainResponse struct {
	Name        string         `json:"name,omitempty"`
	Node        common.Hash    `json:"node"`
	Label       string         `json:"label"`
	Parent      common.Hash    `json:"parent"`
	Owner       common.Address `json:"owner"`
	RecordStore common.Address `json:"recordStore"`
	Expiry      uint64         `json:"expiry"`
	TokenID     uint64         `json:"tokenId"`
}

type OwnerResponse struct {
	Owner common.Address `json:"owner"`
	// Balance counts the tokens held right now; Names is as of the last
	// checkpoint.
	Balance int              `json:"balance"`
	Names   []DomainResponse `json:"names"`
}

type TokenResponse struct {
	TokenID uint64         `json:"tokenId"`
	Node    common.Hash    `json:"node"`
	Name    string         `json:"name,omitempty"`
	Holder  common.Address `json:"holder"`
}

type RegistryResponse struct {
	Root        common.Hash `json:"root"`
	MinDuration uint64      `json:"minDuration"`
	MaxDuration uint64      `json:"maxDuration"`
	GracePeriod uint64      `json:"gracePeriod"`
	Tokens      uint64      `json:"tokens"`
	Paused      bool        `json:"paused"`
}

type ReceiptResponse struct {
	Node    common.Hash  `json:"node"`
	TokenID uint64       `json:"tokenId"`
	Expiry  uint64       `json:"expiry"`
	Charged *hexutil.Big `json:"charged"`
	Refund  *hexutil.Big `json:"refund"`
}

type StartAuctionRequest struct {
	Label          string `json:"label"`
	CommitDuration uint64 `json:"commitDuration"`
	RevealDuration uint64 `json:"revealDuration"`
}

type AuctionResponse struct {
	Label            string              `json:"label"`
	Node             common.Hash         `json:"node"`
	Phase            string              `json:"phase"`
	CommitDeadline   uint64              `json:"commitDeadline"`
	RevealDeadline   uint64              `json:"revealDeadline"`
	Commitments      int                 `json:"commitments"`
	Reveals          int                 `json:"reveals"`
	HighestBidder    *common.Address     `json:"highestBidder,omitempty"`
	HighestBid       *hexutil.Big        `json:"highestBid,omitempty"`
	SecondHighestBid *hexutil.Big        `json:"secondHighestBid,omitempty"`
	Settlement       *SettlementResponse `json:"settlement,omitempty"`
}

type CommitRequest struct {
	Commitment common.Hash `json:"commitment"`
}

type RevealRequest struct {
	Amount  *hexutil.Big `json:"amount"`
	Salt    common.Hash  `json:"salt"`
	Payment *hexutil.Big `json:"payment"`
}

type RevealResponse struct {
	Escrowed *hexutil.Big `json:"escrowed"`
	Refund   *hexutil.Big `json:"refund"`
}

type FinalizeRequest struct {
	Duration    uint64         `json:"duration"`
	RecordStore common.Address `json:"recordStore"`
}

type SettlementResponse struct {
	Winner  common.Address                  `json:"winner"`
	Price   *hexutil.Big                    `json:"price"`
	Refunds map[common.Address]*hexutil.Big `json:"refunds"`
	TokenID uint64                          `json:"tokenId"`
	Expiry  uint64                          `json:"expiry"`
	Voided  bool                            `json:"voided,omitempty"`
}

type WithdrawResponse struct {
	Registry *hexutil.Big `json:"registry"`
	Auction  *hexutil.Big `json:"auction"`
}

type CapabilityRequest struct {
	Address    common.Address `json:"address"`
	Capability string         `json:"capability"`
	Revoke     bool           `json:"revoke,omitempty"`
}

type EventResponse struct {
	ID     string            `json:"id"`
	Kind   string            `json:"kind"`
	Node   common.Hash       `json:"node"`
	Label  string            `json:"label,omitempty"`
	Actor  common.Address    `json:"actor"`
	Owner  common.Address    `json:"owner"`
	Amount *hexutil.Big      `json:"amount,omitempty"`
	Refund *hexutil.Big      `json:"refund,omitempty"`
	Expiry uint64            `json:"expiry,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
	At     uint64            `json:"at"`
}

type ErrorResponse struct {
	Status  int         `json:"status,omitempty"`
	Message string      `json:"msg,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
