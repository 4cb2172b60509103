// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/poiesic/normdoc/core"
)

// EncodeVector serializes a vector as little-endian float32 values.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector deserializes a vector written by EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: vector blob length %d", ErrTruncatedData, len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}

// MarshalVectorRecord serializes a VectorRecord.
//
// Layout: uint32 dimension, dimension float32 values, uint16 collection
// length, collection bytes, JSON payload.
func MarshalVectorRecord(record *core.VectorRecord) ([]byte, error) {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if len(record.Collection) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: collection name too long", ErrSerializationFailed)
	}

	size := 4 + len(record.Vector)*4 + 2 + len(record.Collection) + len(payload)
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(record.Vector)))
	buf = append(buf, EncodeVector(record.Vector)...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(record.Collection)))
	buf = append(buf, record.Collection...)
	buf = append(buf, payload...)
	return buf, nil
}

// UnmarshalVectorRecord deserializes a VectorRecord. The chunk ID is not part
// of the value and must be set by the caller from the key.
func UnmarshalVectorRecord(data []byte) (*core.VectorRecord, error) {
	if len(data) < 4 {
		return nil, ErrTruncatedData
	}
	dim := int(binary.LittleEndian.Uint32(data))
	offset := 4
	if len(data) < offset+dim*4+2 {
		return nil, ErrTruncatedData
	}
	vector, err := DecodeVector(data[offset : offset+dim*4])
	if err != nil {
		return nil, err
	}
	offset += dim * 4

	collLen := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2
	if len(data) < offset+collLen {
		return nil, ErrTruncatedData
	}
	collection := string(data[offset : offset+collLen])
	offset += collLen

	record := &core.VectorRecord{
		Collection: collection,
		Vector:     vector,
	}
	if err := json.Unmarshal(data[offset:], &record.Payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return record, nil
}
