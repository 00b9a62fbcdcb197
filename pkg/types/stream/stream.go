package stream

import "awakenfetch/pkg/types/ledger"

const ContentType = "application/x-ndjson"

type MessageType string

const (
	TypeMeta  MessageType = "meta"
	TypeBatch MessageType = "batch"
	TypeDone  MessageType = "done"
	TypeError MessageType = "error"
)

// Error codes carried by error messages. An empty code is a generic failure.
const (
	CodeRateLimited = "rate_limited"
	CodeUpstream    = "upstream"
)

// Message is one NDJSON line of a transaction stream. A stream carries an optional
// meta, any number of batches and exactly one done or error.
type Message struct {
	Type           MessageType          `json:"type"`
	EstimatedTotal int                  `json:"estimatedTotal,omitempty"`
	Transactions   []ledger.Transaction `json:"transactions,omitempty"`
	Total          *int                 `json:"total,omitempty"`
	Error          string               `json:"error,omitempty"`
	Code           string               `json:"code,omitempty"`
}

func Meta(estimatedTotal int) Message {
	return Message{Type: TypeMeta, EstimatedTotal: estimatedTotal}
}

func Batch(txs []ledger.Transaction) Message {
	return Message{Type: TypeBatch, Transactions: txs}
}

func Done(total int) Message {
	return Message{Type: TypeDone, Total: &total}
}

func Error(msg string) Message {
	return Message{Type: TypeError, Error: msg}
}

// Failure is an error message with a machine readable code.
func Failure(code, msg string) Message {
	return Message{Type: TypeError, Error: msg, Code: code}
}

func (m Message) Terminal() bool {
	return m.Type == TypeDone || m.Type == TypeError
}

// ListResponse is the non-streaming body returned by the JSON fallback endpoint.
type ListResponse struct {
	Transactions []ledger.Transaction `json:"transactions"`
}
