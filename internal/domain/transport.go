package domain

import (
	"context"
	"errors"
)

// Transport delivers one chunk of text to a chat destination.
//
// A nil error means the chunk was accepted. A *FormatRejection means the
// destination refused the rich-text markup and the same text may be resent as
// plain text. Any other error is a transport failure.
type Transport interface {
	Send(ctx context.Context, text string, richText bool) error
}

// TransportFunc adapts a plain function to the Transport interface.
type TransportFunc func(ctx context.Context, text string, richText bool) error

func (f TransportFunc) Send(ctx context.Context, text string, richText bool) error {
	return f(ctx, text, richText)
}

// FormatRejection reports that the destination could not parse the markup.
type FormatRejection struct {
	Detail string
}

func (e *FormatRejection) Error() string {
	return "format rejected: " + e.Detail
}

// IsFormatRejection reports whether err (or anything it wraps) is a FormatRejection.
func IsFormatRejection(err error) bool {
	var fr *FormatRejection
	return errors.As(err, &fr)
}
