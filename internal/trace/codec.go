package trace

import (
	"bytes"
	"encoding/gob"

	"github.com/SanchayPahalwani/lux/pkg/beam"
)

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(beam.StepEntry{})
}

// encodeValue serializes arbitrary Go values using encoding/gob.
// Callers must ensure that run inputs and outputs are gob-encodable.
func encodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	// Encode as interface{} so decoding into interface{} round-trips.
	iv := v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var iv any
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}

func encodeEntries(entries []beam.StepEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntries(data []byte) ([]beam.StepEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var entries []beam.StepEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}
