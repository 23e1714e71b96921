package wyvern

import "github.com/HappyFeet07/WyvernV3Fork/internal/events"

// OrderJSON is the wire form of an order. Addresses and byte strings are 0x
// hex; integers are decimal or 0x hex strings.
type OrderJSON struct {
	Registry        string `json:"registry"`
	Maker           string `json:"maker"`
	StaticTarget    string `json:"staticTarget"`
	StaticSelector  string `json:"staticSelector"`
	StaticExtradata string `json:"staticExtradata"`
	MaximumFill     string `json:"maximumFill"`
	ListingTime     string `json:"listingTime"`
	ExpirationTime  string `json:"expirationTime"`
	Salt            string `json:"salt"`
}

// CallJSON is the wire form of a proxy call
type CallJSON struct {
	Target    string `json:"target"`
	HowToCall uint8  `json:"howToCall"`
	Data      string `json:"data"`
}

// MatchRequest carries both sides of an atomic match
type MatchRequest struct {
	First           OrderJSON `json:"first"`
	FirstCall       CallJSON  `json:"firstCall"`
	FirstSignature  string    `json:"firstSignature"`
	Second          OrderJSON `json:"second"`
	SecondCall      CallJSON  `json:"secondCall"`
	SecondSignature string    `json:"secondSignature"`
	Metadata        string    `json:"metadata"`
}

// HashResponse is the order hash and the digest its maker signs
type HashResponse struct {
	Hash       string `json:"hash"`
	HashToSign string `json:"hashToSign"`
}

// ValidateRequest asks whether an order could settle if submitted by Sender
type ValidateRequest struct {
	Order     OrderJSON `json:"order"`
	Signature string    `json:"signature"`
	Sender    string    `json:"sender"`
}

// ValidateResponse reports the parameter and authorization checks for an order
type ValidateResponse struct {
	Hash            string `json:"hash"`
	ParametersValid bool   `json:"parametersValid"`
	Authorized      bool   `json:"authorized"`
}

// FillResponse is an account's fill record for an order hash
type FillResponse struct {
	Maker string `json:"maker"`
	Hash  string `json:"hash"`
	Fill  string `json:"fill"`
}

// ApprovedResponse is an account's approval record for an order hash
type ApprovedResponse struct {
	Maker    string `json:"maker"`
	Hash     string `json:"hash"`
	Approved bool   `json:"approved"`
}

// InfoResponse describes the deployment. Time is the ledger clock reading
// that action expiries are checked against.
type InfoResponse struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ChainID         string `json:"chainId"`
	Exchange        string `json:"exchange"`
	Registry        string `json:"registry"`
	Atomicizer      string `json:"atomicizer"`
	Static          string `json:"static"`
	DomainSeparator string `json:"domainSeparator"`
	PersonalPrefix  string `json:"personalPrefix"`
	Time            uint64 `json:"time"`
	Operator        string `json:"operator,omitempty"`
}

// ProxyResponse is a directory lookup
type ProxyResponse struct {
	User       string `json:"user"`
	Proxy      string `json:"proxy"`
	Registered bool   `json:"registered"`
}

// GrantResponse is a contract's authentication record
type GrantResponse struct {
	Contract      string `json:"contract"`
	State         string `json:"state"`
	Since         uint64 `json:"since,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// MatchedJSON summarizes an OrdersMatched event
type MatchedJSON struct {
	FirstHash     string `json:"firstHash"`
	SecondHash    string `json:"secondHash"`
	FirstMaker    string `json:"firstMaker"`
	SecondMaker   string `json:"secondMaker"`
	NewFirstFill  string `json:"newFirstFill"`
	NewSecondFill string `json:"newSecondFill"`
	Metadata      string `json:"metadata"`
}

// TransactionResult represents the result of a committed transaction
type TransactionResult struct {
	TxHash  string       `json:"txHash"`
	From    string       `json:"from"`
	To      string       `json:"to"`
	Time    uint64       `json:"time"`
	Events  []string     `json:"events"`
	Matched *MatchedJSON `json:"matched,omitempty"`
}

// BatchMatchResult is the outcome of one match in MatchBatch
type BatchMatchResult struct {
	Index   int                `json:"index"`
	Success bool               `json:"success"`
	Error   string             `json:"error,omitempty"`
	Result  *TransactionResult `json:"result,omitempty"`
}

// EventsResponse is a page of journaled events, newest first
type EventsResponse struct {
	Events []events.Envelope `json:"events"`
}
