package call

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainDelivery prefixes delivery idempotency hashes. The version suffix
// allows the key layout to change without colliding with old keys.
const DomainDelivery = "callrecon/delivery/v1"

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DeliveryKey computes the idempotency key for one delivery conclusion:
// the same (kind, record, answered) triple always hashes to the same key,
// so a repeated send of an identical conclusion is recognizable by the sink.
func DeliveryKey(kind string, key RecordKey, answered bool) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"kind":      kind,
		"phone_key": key.PhoneKey,
		"epoch":     key.Epoch,
		"answered":  answered,
	})
	if err != nil {
		return "", fmt.Errorf("DeliveryKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDelivery, canonical), nil
}

// MustDeliveryKey is like DeliveryKey but panics on error.
func MustDeliveryKey(kind string, key RecordKey, answered bool) string {
	k, err := DeliveryKey(kind, key, answered)
	if err != nil {
		panic(err)
	}
	return k
}
