package gateway

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
)

// SignData computes the payOS webhook signature: HMAC-SHA256 over the data
// object's fields sorted by key and joined as key=value pairs with '&'.
func SignData(data json.RawMessage, checksumKey string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return "", err
	}
	if fields == nil {
		return "", errors.New("webhook data is not an object")
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value, err := signatureValue(fields[k])
		if err != nil {
			return "", err
		}
		parts = append(parts, k+"="+value)
	}

	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func signatureValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		if val == "null" || val == "undefined" {
			return "", nil
		}
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

type signedEnvelope struct {
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// verifySignature checks payload's data object against signature, falling
// back to the signature carried in the body when none is given.
func verifySignature(payload []byte, signature, checksumKey string) bool {
	if checksumKey == "" {
		return false
	}

	var envelope signedEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return false
	}
	if len(envelope.Data) == 0 || bytes.Equal(bytes.TrimSpace(envelope.Data), []byte("null")) {
		return false
	}
	if signature == "" {
		signature = envelope.Signature
	}
	if signature == "" {
		return false
	}

	expected, err := SignData(envelope.Data, checksumKey)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
