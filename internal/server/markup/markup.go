// Package markup converts note bodies between the wire representation
// clients send and the canonical form the store keeps. The server treats
// bodies as opaque beyond this boundary, so swapping the conversion (for
// example to rewrite note links) touches nothing else.
package markup

import (
	"fmt"
	"unicode/utf8"
)

// Converter translates a note body on its way in and out of the store.
type Converter interface {
	// ToStorageFormat converts a client-supplied body to the canonical
	// stored form. It rejects bodies that are not valid UTF-8.
	ToStorageFormat(body string) (string, error)
	// ToDisplayFormat converts a stored body to the form sent to clients.
	ToDisplayFormat(body string) (string, error)
}

// Passthrough stores bodies exactly as received. It still validates
// encoding so the store never holds undecodable text.
type Passthrough struct{}

// NewPassthrough constructs the identity converter.
func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func (p *Passthrough) ToStorageFormat(body string) (string, error) {
	if !utf8.ValidString(body) {
		return "", fmt.Errorf("note body is not valid utf-8")
	}
	return body, nil
}

func (p *Passthrough) ToDisplayFormat(body string) (string, error) {
	return body, nil
}
