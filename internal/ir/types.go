package ir

// Tx is an unsigned transaction addressed to one account of one program.
type Tx struct {
	Program string `json:"program"`
	Account string `json:"account"`
	Action  string `json:"action"`
	Args    Object `json:"args"`
	Nonce   int64  `json:"nonce"`
}

// Object returns the canonical object form of tx, the input to signing and
// identifier hashing.
func (tx Tx) Object() Object {
	args := tx.Args
	if args == nil {
		args = Object{}
	}
	return Object{
		"program": String(tx.Program),
		"account": String(tx.Account),
		"action":  String(tx.Action),
		"args":    args,
		"nonce":   Int(tx.Nonce),
	}
}

// Status is the outcome of a transaction.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Receipt records the outcome of one executed transaction.
type Receipt struct {
	TxID      string `json:"tx_id"`
	Seq       int64  `json:"seq"`
	Program   string `json:"program"`
	Account   string `json:"account"`
	Action    string `json:"action"`
	Signer    string `json:"signer"`
	Status    Status `json:"status"`
	Result    Object `json:"result,omitempty"`
	Event     *Event `json:"event,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// OK reports whether the transaction committed.
func (r Receipt) OK() bool { return r.Status == StatusOK }

// Event is a notification emitted after a committed write.
type Event struct {
	Seq     int64  `json:"seq"`
	ID      string `json:"id"`
	TxID    string `json:"tx_id"`
	Program string `json:"program"`
	Account string `json:"account"`
	Name    string `json:"name"`
	Payload Object `json:"payload"`
}

// Account describes a stored account without its data.
type Account struct {
	Address   string `json:"address"`
	Program   string `json:"program"`
	Authority string `json:"authority"`
	Policy    string `json:"policy"`
	Size      int    `json:"size"`
	CreatedAt int64  `json:"created_seq"`
}
