package events

import "time"

const TopicExports = "exports"

type Publisher interface {
	Publish(payload []byte) error
}

type Subscriber interface {
	Subscribe() error
}

type Bus interface {
	Publisher
	Subscriber
}

// ExportCompleted is published once a CSV download has been written to the client.
type ExportCompleted struct {
	Kind     string     `json:"kind"`
	ChainID  string     `json:"chainId"`
	Address  string     `json:"address"`
	FromDate *time.Time `json:"fromDate,omitempty"`
	ToDate   *time.Time `json:"toDate,omitempty"`
	Rows     int        `json:"rows"`
	Filename string     `json:"filename"`
	At       time.Time  `json:"at"`
}
