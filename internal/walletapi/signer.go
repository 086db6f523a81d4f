package walletapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Signer produces the x-timestamp/x-signature header pair the wallet
// gateway requires on every call, grounded on the L2 HMAC scheme in
// 0xtitan6-polymarket-mm/internal/exchange/auth.go's buildHMAC (message
// = timestamp + method + path [+ body]), adapted here to sign a
// canonical JSON body rather than a raw opaque string.
type Signer struct {
	secret []byte
}

// NewSigner wraps a shared signing secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign canonicalizes body (sorting map keys before marshaling, so the
// wallet gateway's own JSON encoder produces the same bytes regardless
// of struct field order) and returns the headers to send plus the exact
// bytes the signature covers.
//
// This resolves spec.md §9's open question about canonicalization
// compatibility: both sides must serialize the body identically, so the
// contract is "sort every object's keys, no whitespace" rather than
// relying on any one language's native marshal order.
func (s *Signer) Sign(method, path string, body interface{}, now time.Time) (map[string]string, []byte, error) {
	canonical, err := canonicalJSON(body)
	if err != nil {
		return nil, nil, fmt.Errorf("canonicalize body: %w", err)
	}

	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	message := method + "|" + path + "|" + string(canonical) + "|" + timestamp

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))
	signature := hex.EncodeToString(mac.Sum(nil))

	headers := map[string]string{
		"x-timestamp": timestamp,
		"x-signature": signature,
	}
	return headers, canonical, nil
}

// canonicalJSON marshals v through a generic map/slice representation,
// then re-encodes it with marshalSorted, which writes every object's keys
// in sorted order and uses json.Marshal only for keys and scalar values.
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	return marshalSorted(generic)
}

func marshalSorted(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, keyJSON...)
			buf = append(buf, ':')

			valJSON, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, valJSON...)
		}
		buf = append(buf, '}')
		return buf, nil

	case []interface{}:
		buf := []byte{'['}
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			itemJSON, err := marshalSorted(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, itemJSON...)
		}
		buf = append(buf, ']')
		return buf, nil

	default:
		return json.Marshal(val)
	}
}
