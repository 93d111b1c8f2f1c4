package ledger

// AccountInfo contains on-chain account information
type AccountInfo struct {
	Address string `json:"address"` // raw format
	Balance int64  `json:"balance"` // nanoTON
	Status  string `json:"status"`
}

// Event represents a ledger event touching an account
type Event struct {
	EventID   string   `json:"event_id"`
	Timestamp int64    `json:"timestamp"`
	Actions   []Action `json:"actions"`
	IsScam    bool     `json:"is_scam"`
}

// Action represents one action within an event
type Action struct {
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	TonTransfer    *TonTransfer    `json:"TonTransfer,omitempty"`
	JettonTransfer *JettonTransfer `json:"JettonTransfer,omitempty"`
}

// TonTransfer is a native TON transfer action
type TonTransfer struct {
	Sender    EventAccount `json:"sender"`
	Recipient EventAccount `json:"recipient"`
	Amount    int64        `json:"amount"` // nanoTON
	Comment   string       `json:"comment,omitempty"`
}

// JettonTransfer is a jetton transfer action
type JettonTransfer struct {
	Sender    EventAccount `json:"sender"`
	Recipient EventAccount `json:"recipient"`
	Amount    string       `json:"amount"` // base units, decimal string
	Comment   string       `json:"comment,omitempty"`
	Jetton    JettonInfo   `json:"jetton"`
}

// JettonInfo contains jetton metadata
type JettonInfo struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// EventAccount identifies a counterparty in an event
type EventAccount struct {
	Address  string `json:"address"`
	Name     string `json:"name,omitempty"`
	IsWallet bool   `json:"is_wallet,omitempty"`
}

// EventsResponse is the response from the events endpoint
type EventsResponse struct {
	Events []Event `json:"events"`
}

// JettonBalance is one entry of an account's jetton holdings
type JettonBalance struct {
	Balance string     `json:"balance"` // base units, decimal string
	Jetton  JettonInfo `json:"jetton"`
}

// JettonsResponse is the response from the jetton balances endpoint
type JettonsResponse struct {
	Balances []JettonBalance `json:"balances"`
}

// WebhookPayload is the payload received on the webhook endpoint
type WebhookPayload struct {
	EventType string `json:"event_type,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`
	Lt        int64  `json:"lt,omitempty"`
	Event     *Event `json:"event,omitempty"`
}

// Webhook represents a registered webhook
type Webhook struct {
	ID       int64    `json:"webhook_id"`
	Endpoint string   `json:"endpoint"`
	Accounts []string `json:"subscribed_accounts,omitempty"`
}

// WebhookListResponse is the response from the webhook list endpoint
type WebhookListResponse struct {
	Webhooks []Webhook `json:"webhooks"`
}
