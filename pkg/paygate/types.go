package paygate

// ReadyRequest opens a payment session with the gateway before any order row
// is committed as payable.
type ReadyRequest struct {
	OrderID     string
	UserID      string
	ItemName    string
	Quantity    int
	AmountCents int
}

// ReadyResponse carries the gateway transaction id and the URL the shopper is
// redirected to for approval.
type ReadyResponse struct {
	TID         string `json:"tid"`
	RedirectURL string `json:"next_redirect_pc_url"`
	CreatedAt   string `json:"created_at"`
}

// ApproveRequest finalizes a ready transaction once the shopper returns with
// the gateway token.
type ApproveRequest struct {
	TID     string
	OrderID string
	UserID  string
	PGToken string
}

// ApproveResponse is the gateway's settlement confirmation.
type ApproveResponse struct {
	AID         string `json:"aid"`
	TID         string `json:"tid"`
	AmountCents int    `json:"amount_cents"`
	ApprovedAt  string `json:"approved_at"`
}

// CancelRequest voids an approved transaction, fully or partially.
type CancelRequest struct {
	TID         string
	AmountCents int
}

// CancelResponse reports the post-cancel transaction state.
type CancelResponse struct {
	TID        string `json:"tid"`
	Status     string `json:"status"`
	CanceledAt string `json:"canceled_at"`
}

// StatusResponse mirrors the gateway's transaction lookup payload, used by
// reconciliation to learn the true outcome of stale pending orders.
type StatusResponse struct {
	TID    string `json:"tid"`
	AID    string `json:"aid"`
	Status string `json:"status"`
}

// Gateway transaction states surfaced by the status endpoint.
const (
	StatusReady    = "READY"
	StatusApproved = "SUCCESS_PAYMENT"
	StatusCanceled = "CANCEL_PAYMENT"
	StatusFailed   = "FAIL_PAYMENT"
	StatusQuit     = "QUIT_PAYMENT"
)
