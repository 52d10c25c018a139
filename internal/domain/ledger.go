package domain

import "time"

// Tag is a name/value pair attached to a ledger upload. Order is
// preserved on the wire.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// UploadResult is the outcome of a single ledger upload attempt.
// Success means the external network accepted the data; when it did
// not, TxID holds a locally-derived fallback id so gameplay is never
// blocked on ledger availability.
type UploadResult struct {
	TxID       string `json:"tx_id"`
	GatewayURL string `json:"gateway_url,omitempty"`
	Network    string `json:"network"`
	Success    bool   `json:"success"`
	Verified   bool   `json:"verified"`
	Error      string `json:"error,omitempty"`
}

// UploadRecord is the audit-trail row written for every upload attempt,
// success or failure. It lets fallback transaction ids be traced later.
type UploadRecord struct {
	TxID      string    `json:"tx_id"`
	Player    string    `json:"player"`
	Data      string    `json:"data"`
	Tags      []Tag     `json:"tags"`
	Timestamp time.Time `json:"timestamp"`
	Network   string    `json:"network"`
	Verified  bool      `json:"verified"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// BalanceInfo reports the funding state of the upload account.
type BalanceInfo struct {
	Balance string `json:"balance"`
	Network string `json:"network"`
	Message string `json:"message,omitempty"`
}

// PriceInfo reports the cost of uploading a payload of a given size.
type PriceInfo struct {
	Bytes   int64  `json:"bytes"`
	Price   string `json:"price"`
	Network string `json:"network"`
}

// FundResult reports the outcome of an account funding request.
type FundResult struct {
	Amount  string `json:"amount"`
	TxID    string `json:"tx_id,omitempty"`
	Network string `json:"network"`
}

// NetworkInfo describes the ledger network the server is wired to.
type NetworkInfo struct {
	Network    string `json:"network"`
	GatewayURL string `json:"gateway_url"`
	Address    string `json:"address,omitempty"`
	AppName    string `json:"app_name"`
}
