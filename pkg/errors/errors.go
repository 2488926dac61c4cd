package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reason is the machine-readable rejection or failure cause surfaced to
// callers. Bid submitters use it to decide whether to resubmit higher,
// wait, or abandon.
type Reason string

const (
	ReasonInvalidWindow     Reason = "invalid_window"
	ReasonInvalidPrice      Reason = "invalid_price"
	ReasonListingAuctioned  Reason = "listing_already_auctioned"
	ReasonAuctionNotFound   Reason = "auction_not_found"
	ReasonAuctionNotActive  Reason = "auction_not_active"
	ReasonAuctionExpired    Reason = "auction_expired"
	ReasonSelfBid           Reason = "self_bid"
	ReasonBidTooLow         Reason = "bid_too_low"
	ReasonRaceLost          Reason = "race_lost"
	ReasonAlreadyTerminal   Reason = "already_terminal"
	ReasonInvalidTransition Reason = "invalid_transition"
	ReasonBadMessage        Reason = "bad_message"
	ReasonUnauthorized      Reason = "unauthorized"
	ReasonInternal          Reason = "internal_error"
)

type AppError struct {
	Reason  Reason // Machine-readable cause
	Message string // User-facing message
	Err     error  // Underlying error (optional)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ToJSON renders the error in the shape sent over the websocket wire.
func (e *AppError) ToJSON() []byte {
	payload := struct {
		Type    string `json:"type"`
		Reason  Reason `json:"reason"`
		Message string `json:"message"`
	}{Type: "error", Reason: e.Reason, Message: e.Message}

	b, err := json.Marshal(payload)
	if err != nil {
		return []byte(`{"type":"error","reason":"internal_error","message":"encoding failure"}`)
	}
	return b
}

func New(reason Reason, message string) *AppError {
	return &AppError{Reason: reason, Message: message}
}

func Newf(reason Reason, format string, args ...any) *AppError {
	return &AppError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a message to an underlying infrastructure error.
func Wrap(err error, message string) *AppError {
	return &AppError{Reason: ReasonInternal, Message: message, Err: err}
}

// ReasonOf extracts the Reason from err, or ReasonInternal for plain errors.
func ReasonOf(err error) Reason {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ReasonInternal
}

// HasReason reports whether err carries the given rejection reason.
func HasReason(err error, reason Reason) bool {
	return err != nil && ReasonOf(err) == reason
}
