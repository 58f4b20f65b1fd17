package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by durable drivers to store one JSON document per
// snapshot section.
const (
	BucketToken      = "token"
	BucketRegistry   = "registry"
	BucketAccounts   = "accounts"
	BucketAllowances = "allowances"
	BucketItems      = "items"
	BucketRoles      = "roles"
	BucketEvents     = "events"
)

// Buckets lists every bucket in the order durable drivers write them.
var Buckets = []string{
	BucketToken,
	BucketRegistry,
	BucketAccounts,
	BucketAllowances,
	BucketItems,
	BucketRoles,
	BucketEvents,
}

func (s *Snapshot) bucketTarget(bucket string) (any, bool) {
	switch bucket {
	case BucketToken:
		return &s.Token, true
	case BucketRegistry:
		return &s.Registry, true
	case BucketAccounts:
		return &s.Accounts, true
	case BucketAllowances:
		return &s.Allowances, true
	case BucketItems:
		return &s.Items, true
	case BucketRoles:
		return &s.Roles, true
	case BucketEvents:
		return &s.Events, true
	default:
		return nil, false
	}
}

// EncodeBucket marshals one section of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	target, ok := s.bucketTarget(bucket)
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	data, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// DecodeBucket unmarshals payload into the matching section of the snapshot.
// Unknown buckets are ignored so newer databases stay readable.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := s.bucketTarget(bucket)
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
