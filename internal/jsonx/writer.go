// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package jsonx implements a minimal JSON object writer used for the
// outbound bucket batch payload, where field order and number formatting
// must stay byte-stable across releases.
package jsonx

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FieldsWriter writes JSON object fields to Buf. The caller is responsible
// for the surrounding '{' and '}'.
type FieldsWriter struct {
	Buf        *bytes.Buffer
	needsComma bool
}

// AddKey writes the comma (if needed) and the quoted key followed by ':'.
func (w *FieldsWriter) AddKey(key string) {
	if w.needsComma {
		w.Buf.WriteByte(',')
	}
	w.needsComma = true
	WriteString(w.Buf, key)
	w.Buf.WriteByte(':')
}

// StringField writes a string field.
func (w *FieldsWriter) StringField(key, val string) {
	w.AddKey(key)
	WriteString(w.Buf, val)
}

// IntField writes an integer field.
func (w *FieldsWriter) IntField(key string, val int64) {
	w.AddKey(key)
	w.Buf.WriteString(strconv.FormatInt(val, 10))
}

// UintField writes an unsigned integer field.
func (w *FieldsWriter) UintField(key string, val uint64) {
	w.AddKey(key)
	w.Buf.WriteString(strconv.FormatUint(val, 10))
}

// FloatField writes a float field. Formatting matches encoding/json:
// integral values carry no exponent or trailing zeros.
func (w *FieldsWriter) FloatField(key string, val float64) {
	w.AddKey(key)
	WriteFloat(w.Buf, val)
}

// WriteString writes a JSON string literal including quotes.
func WriteString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// WriteFloat writes a float the same way encoding/json does, so values like
// 42.0 serialize as "42.0"-compatible consumers expect ("42").
func WriteFloat(buf *bytes.Buffer, f float64) {
	abs := f
	if abs < 0 {
		abs = -abs
	}
	fmt := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		fmt = 'e'
	}
	b := strconv.AppendFloat(buf.AvailableBuffer(), f, fmt, -1, 64)
	buf.Write(b)
}
