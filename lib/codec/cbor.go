// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides commtrail's standard CBOR configuration.
//
// Commtrail uses two serialization formats with a clear boundary:
// CBOR for internal plumbing (the event-service socket protocol and
// archive records) and JSON for human-facing surfaces (CLI --json
// output, viewer preset files). This package holds the shared CBOR
// modes so every package encodes identically.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. Same logical data always produces identical bytes, which
// the archive format relies on for its content hash.
//
// Struct tag rule: types that only ever cross the socket or land in
// archives carry `cbor` tags; types that also appear in JSON output
// carry `json` tags alone (the CBOR codec reads them as fallback).
// Never both on one field.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Commtrail map keys are always strings. Any-typed decode
		// targets get map[string]any instead of the CBOR default
		// map[interface{}]interface{}, which nothing downstream can
		// consume. Struct field decoding is unaffected.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are ignored for
// forward compatibility.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder. Alias so consumers import only
// lib/codec, not the CBOR library directly.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value for delayed decoding or
// pre-encoded output.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing to w with the standard
// configuration.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r with the
// standard configuration.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
