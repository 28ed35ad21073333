package funding

// FundRequest captures the amount a gateway pays to a wallet of the activated
// issuer of its wallet currency. Without a recipient the issuer-owned wallet is paid.
type FundRequest struct {
	Amount              string `json:"amount"`
	RecipientWalletID   string `json:"recipient_wallet_id"`
	RecipientWalletType string `json:"recipient_wallet_type"`
	ClientTxID          string `json:"client_tx_id"`
}

// FundingResponse represents the API response for a wallet funding.
type FundingResponse struct {
	FlowID        string `json:"flow_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Issuer        string `json:"issuer"`
	WalletBalance string `json:"wallet_balance"`
}
