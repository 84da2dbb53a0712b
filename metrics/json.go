// Copyright 2022 Relaycore Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/relaycore/relaycore-go/internal/jsonx"
)

// EncodeBuckets serializes a flushed batch of buckets. Ownership fields
// (org_id, project_id) are included only when the batch is emitted toward a
// processing-capable destination; forwarding destinations resolve ownership
// themselves.
func EncodeBuckets(buckets []*Bucket, includeOwnership bool) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte('[')
	for idx, b := range buckets {
		if idx > 0 {
			buf.WriteByte(',')
		}
		b.writeJSON(buf, includeOwnership)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func (b *Bucket) writeJSON(buf *bytes.Buffer, includeOwnership bool) {
	w := jsonx.FieldsWriter{Buf: buf}
	buf.WriteByte('{')
	w.IntField("timestamp", b.Key.Timestamp)
	w.IntField("width", b.Width)
	w.StringField("name", b.Key.MetricName)
	b.writeValue(&w)
	w.StringField("type", b.Value.Type().String())
	if len(b.Key.Tags) > 0 {
		w.AddKey("tags")
		buf.WriteByte('{')
		tw := jsonx.FieldsWriter{Buf: buf}
		for _, name := range sortedTagKeys(b.Key.Tags) {
			tw.StringField(name, b.Key.Tags[name])
		}
		buf.WriteByte('}')
	}
	if includeOwnership {
		w.UintField("org_id", b.Key.OrgID)
		w.UintField("project_id", b.Key.ProjectID)
	}
	buf.WriteByte('}')
}

func (b *Bucket) writeValue(w *jsonx.FieldsWriter) {
	switch v := b.Value.(type) {
	case CounterValue:
		w.FloatField("value", float64(v))
	case DistributionValue:
		w.AddKey("value")
		w.Buf.WriteByte('[')
		for idx, f := range v {
			if idx > 0 {
				w.Buf.WriteByte(',')
			}
			jsonx.WriteFloat(w.Buf, f)
		}
		w.Buf.WriteByte(']')
	case SetValue:
		members := make([]uint32, 0, len(v))
		for m := range v {
			members = append(members, m)
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		w.AddKey("value")
		w.Buf.WriteByte('[')
		for idx, m := range members {
			if idx > 0 {
				w.Buf.WriteByte(',')
			}
			w.Buf.WriteString(strconv.FormatUint(uint64(m), 10))
		}
		w.Buf.WriteByte(']')
	case GaugeValue:
		w.AddKey("value")
		w.Buf.WriteByte('{')
		gw := jsonx.FieldsWriter{Buf: w.Buf}
		gw.FloatField("last", v.Last)
		gw.FloatField("min", v.Min)
		gw.FloatField("max", v.Max)
		gw.FloatField("sum", v.Sum)
		gw.UintField("count", v.Count)
		w.Buf.WriteByte('}')
	}
}
