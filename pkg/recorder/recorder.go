/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package recorder persists a stream of events for later offline
// playback, the same role the teacher's recorder/recorderpb pair
// plays for mircat. The teacher's framing is protobuf, generated from
// a .proto this module was never given and has no toolchain access to
// compile; recorder instead frames each record as one line of JSON via
// json-iterator (a drop-in encoding/json replacement requiring no
// codegen), and is generic over the record type so both the domain's
// packet trace and its tracer event log can reuse the same writer.
package recorder

import (
	"bufio"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var jsonAPI = jsoniter.ConfigFastest

// Writer appends records of type T as newline-delimited JSON.
type Writer[T any] struct {
	w io.Writer
}

func NewWriter[T any](w io.Writer) *Writer[T] {
	return &Writer[T]{w: w}
}

func (w *Writer[T]) Write(record T) error {
	b, err := jsonAPI.Marshal(record)
	if err != nil {
		return errors.WithMessage(err, "recorder: marshal record")
	}
	b = append(b, '\n')
	if _, err := w.w.Write(b); err != nil {
		return errors.WithMessage(err, "recorder: write record")
	}
	return nil
}

// Reader reads back records written by Writer, one per ReadEvent call.
type Reader[T any] struct {
	scanner *bufio.Scanner
}

func NewReader[T any](r io.Reader) *Reader[T] {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader[T]{scanner: scanner}
}

// ReadEvent returns the next record, or io.EOF once the stream is
// exhausted -- the same sentinel mircat's playback loop checks for.
func (r *Reader[T]) ReadEvent() (T, error) {
	var zero T
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return zero, errors.WithMessage(err, "recorder: read record")
		}
		return zero, io.EOF
	}

	var record T
	if err := jsonAPI.Unmarshal(r.scanner.Bytes(), &record); err != nil {
		return zero, errors.WithMessage(err, "recorder: unmarshal record")
	}
	return record, nil
}
