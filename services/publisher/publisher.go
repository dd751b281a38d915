package publisher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Publisher represents a service for publishing messages
type Publisher interface {
	// Publish publishes a message for an item key
	Publish(ctx context.Context, key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}

// SeriesMessage is the payload published for every collected job
type SeriesMessage struct {
	Key        string         `json:"key"`
	Source     string         `json:"source"`
	Query      string         `json:"query"`
	Target     string         `json:"target,omitempty"`
	Incomplete bool           `json:"incomplete"`
	Stop       string         `json:"stop"`
	Error      string         `json:"error,omitempty"`
	Points     []PointMessage `json:"points"`
}

// PointMessage is one series point on the wire
type PointMessage struct {
	Date      string          `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	FetchedAt time.Time       `json:"fetched_at"`
	Title     string          `json:"title,omitempty"`
	URL       string          `json:"url,omitempty"`
	Bids      int             `json:"bids,omitempty"`

	CardNumber string `json:"card_number,omitempty"`
	Set        string `json:"set,omitempty"`
	Graded     bool   `json:"graded,omitempty"`
	Grader     string `json:"grader,omitempty"`
	Grade      string `json:"grade,omitempty"`
}
