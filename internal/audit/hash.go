package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// GenesisHash is the PrevHash of the first record in every session.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ComputeRecordHash computes the hash of a record over its JSON encoding with
// the Hash field cleared.
func ComputeRecordHash(r *Record) string {
	c := *r
	c.Hash = ""
	data, err := json.Marshal(&c)
	if err != nil {
		// Fallback to record ID if marshaling fails
		data = []byte(r.ID)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalizeParams converts parameters to the form they take after a JSON
// round trip, so a hash computed at write time matches one computed over the
// persisted line. Numbers become json.Number to keep their exact text.
func normalizeParams(params map[string]any) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := decodeJSON(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeJSON unmarshals one JSON value with numbers kept as json.Number.
// Trailing data is an error, as with json.Unmarshal.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("invalid character after top-level value")
	}
	return nil
}

// VerifyRecordHash verifies that a record's hash is correct.
func VerifyRecordHash(r *Record) bool {
	if r.Hash == "" {
		return true // written without a chain
	}
	return ComputeRecordHash(r) == r.Hash
}

// ChainStatus represents the integrity status of the audit trail.
type ChainStatus struct {
	Valid         bool   `json:"valid"`
	TotalRecords  int    `json:"total_records"`
	Sessions      int    `json:"sessions"`
	UnhashedCount int    `json:"unhashed_records"`
	BrokenAt      string `json:"broken_at,omitempty"` // ID of the first bad record
	Error         string `json:"error,omitempty"`
}

// VerifyChain checks records in write order. Chains are per session, so
// records of concurrent sessions may interleave.
func VerifyChain(records []Record) ChainStatus {
	status := ChainStatus{TotalRecords: len(records), Valid: true}
	last := make(map[string]string) // session -> last hash

	for i := range records {
		r := &records[i]
		if r.Hash == "" {
			status.UnhashedCount++
		}
		if !VerifyRecordHash(r) {
			return broken(status, r, fmt.Errorf("record %s has invalid hash", r.ID))
		}

		prev, seen := last[r.SessionID]
		if !seen {
			status.Sessions++
			if r.PrevHash != "" && r.PrevHash != GenesisHash {
				return broken(status, r, fmt.Errorf("first record %s of session %s has invalid prevHash", r.ID, r.SessionID))
			}
		} else if r.PrevHash != "" && r.PrevHash != prev {
			return broken(status, r, fmt.Errorf("record %s has broken chain link", r.ID))
		}

		if r.Hash != "" {
			last[r.SessionID] = r.Hash
		} else {
			last[r.SessionID] = ComputeRecordHash(r)
		}
	}

	return status
}

func broken(status ChainStatus, r *Record, err error) ChainStatus {
	status.Valid = false
	status.BrokenAt = r.ID
	status.Error = err.Error()
	return status
}
