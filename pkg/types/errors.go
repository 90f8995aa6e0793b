package types

import "errors"

// Domain errors for type validation
var (
	// Detail item errors
	ErrMissingID         = errors.New("id is required")
	ErrMissingCampaignID = errors.New("campaign id is required")
	ErrUnknownCategory   = errors.New("unknown detail item category")
	ErrInvalidConfidence = errors.New("ai confidence must be between 0 and 1")

	// Session message errors
	ErrMissingSessionID   = errors.New("session id is required")
	ErrUnknownMessageType = errors.New("unknown message type")

	// Change event errors
	ErrMalformedEvent = errors.New("malformed change event")
)
