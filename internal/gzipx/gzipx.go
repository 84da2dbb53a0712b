// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package gzipx contains gzip helpers for outbound batch payloads.
package gzipx

import (
	"bytes"
	"compress/gzip"
	"io"
)

// Compress gzips the given input. For better performance use CompressWithWriter
// with a pooled gzip.Writer.
func Compress(b []byte) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if err := CompressWithWriter(b, w); nil != err {
		return nil, err
	}
	return &buf, nil
}

// CompressWithWriter gzips the given input using a specific writer.
func CompressWithWriter(b []byte, w *gzip.Writer) error {
	if _, err := w.Write(b); nil != err {
		return err
	}
	return w.Close()
}

// Uncompress un-gzips the given input.
func Uncompress(b []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewBuffer(b))
	if nil != err {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
