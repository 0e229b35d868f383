package asset

import (
	"fmt"
	"slices"
	"strings"
)

// Subset is an immutable set of partitions of a single asset.
//
// For a partitioned asset, a Subset holds a set of partition keys. For an
// unpartitioned asset it holds presence or absence of the single implicit
// partition. Combinators never mutate their receiver; every operation
// returns a fresh value, so Subsets can be shared freely across the
// evaluation tree.
//
// Set laws that hold for subsets of the same asset:
//   - Union and Intersect are commutative and associative.
//   - Empty is the identity for Union and the absorbing element for
//     Intersect.
//
// Combining subsets of different assets fails fast with
// DifferentAssetsError.
type Subset struct {
	key         Key
	partitioned bool

	// Partitioned assets: member partition keys. Never mutated after
	// construction.
	members map[string]struct{}

	// Unpartitioned assets: whether the implicit partition is present.
	present bool
}

// EmptySubset returns the subset of key with no members.
func EmptySubset(key Key, def PartitionsDef) Subset {
	return Subset{key: key, partitioned: def.Partitioned()}
}

// AllSubset returns the subset containing every existing partition of the
// asset (or the implicit partition for unpartitioned assets). This is the
// root candidate scope for a condition-tree evaluation.
func AllSubset(key Key, def PartitionsDef) Subset {
	if !def.Partitioned() {
		return Subset{key: key, present: true}
	}
	keys := def.Keys()
	members := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		members[k] = struct{}{}
	}
	return Subset{key: key, partitioned: true, members: members}
}

// SubsetFromKeys returns the subset containing exactly the given partition
// keys. Duplicate keys are collapsed; construction is order-independent.
// Keys not present in the partitions definition are rejected with
// UnknownPartitionError.
func SubsetFromKeys(key Key, def PartitionsDef, partitionKeys ...string) (Subset, error) {
	if !def.Partitioned() {
		if len(partitionKeys) > 0 {
			return Subset{}, &UnknownPartitionError{Asset: key, PartitionKey: partitionKeys[0]}
		}
		return Subset{key: key}, nil
	}
	members := make(map[string]struct{}, len(partitionKeys))
	for _, pk := range partitionKeys {
		if !def.HasKey(pk) {
			return Subset{}, &UnknownPartitionError{Asset: key, PartitionKey: pk}
		}
		members[pk] = struct{}{}
	}
	return Subset{key: key, partitioned: true, members: members}, nil
}

// UnpartitionedSubset returns the present singleton subset of an
// unpartitioned asset.
func UnpartitionedSubset(key Key) Subset {
	return Subset{key: key, present: true}
}

// AssetKey returns the asset this subset belongs to.
func (s Subset) AssetKey() Key {
	return s.key
}

// Partitioned reports whether the subset belongs to a partitioned asset.
func (s Subset) Partitioned() bool {
	return s.partitioned
}

// Size returns the number of member partitions (0 or 1 for
// unpartitioned assets).
func (s Subset) Size() int {
	if !s.partitioned {
		if s.present {
			return 1
		}
		return 0
	}
	return len(s.members)
}

// IsEmpty reports whether the subset has no members.
func (s Subset) IsEmpty() bool {
	return s.Size() == 0
}

// Contains reports whether the given partition key is a member.
// For unpartitioned assets the empty key addresses the implicit partition.
func (s Subset) Contains(partitionKey string) bool {
	if !s.partitioned {
		return s.present && partitionKey == ""
	}
	_, ok := s.members[partitionKey]
	return ok
}

// PartitionKeys returns the member partition keys in sorted order.
// Nil for unpartitioned assets.
func (s Subset) PartitionKeys() []string {
	if !s.partitioned {
		return nil
	}
	keys := make([]string, 0, len(s.members))
	for k := range s.members {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Union returns a new subset containing members of either operand.
func (s Subset) Union(other Subset) (Subset, error) {
	if err := s.checkSameAsset(other); err != nil {
		return Subset{}, err
	}
	if !s.partitioned {
		return Subset{key: s.key, present: s.present || other.present}, nil
	}
	members := make(map[string]struct{}, len(s.members)+len(other.members))
	for k := range s.members {
		members[k] = struct{}{}
	}
	for k := range other.members {
		members[k] = struct{}{}
	}
	return Subset{key: s.key, partitioned: true, members: members}, nil
}

// Intersect returns a new subset containing members of both operands.
func (s Subset) Intersect(other Subset) (Subset, error) {
	if err := s.checkSameAsset(other); err != nil {
		return Subset{}, err
	}
	if !s.partitioned {
		return Subset{key: s.key, present: s.present && other.present}, nil
	}
	members := make(map[string]struct{})
	for k := range s.members {
		if _, ok := other.members[k]; ok {
			members[k] = struct{}{}
		}
	}
	return Subset{key: s.key, partitioned: true, members: members}, nil
}

// Difference returns a new subset containing members of s that are not
// members of other.
func (s Subset) Difference(other Subset) (Subset, error) {
	if err := s.checkSameAsset(other); err != nil {
		return Subset{}, err
	}
	if !s.partitioned {
		return Subset{key: s.key, present: s.present && !other.present}, nil
	}
	members := make(map[string]struct{})
	for k := range s.members {
		if _, ok := other.members[k]; !ok {
			members[k] = struct{}{}
		}
	}
	return Subset{key: s.key, partitioned: true, members: members}, nil
}

// Equal reports whether both subsets have the same asset and members.
func (s Subset) Equal(other Subset) bool {
	if s.key != other.key || s.partitioned != other.partitioned {
		return false
	}
	if !s.partitioned {
		return s.present == other.present
	}
	if len(s.members) != len(other.members) {
		return false
	}
	for k := range s.members {
		if _, ok := other.members[k]; !ok {
			return false
		}
	}
	return true
}

// String renders the subset for logging and error messages.
func (s Subset) String() string {
	if !s.partitioned {
		if s.present {
			return fmt.Sprintf("%s{*}", s.key)
		}
		return fmt.Sprintf("%s{}", s.key)
	}
	return fmt.Sprintf("%s{%s}", s.key, strings.Join(s.PartitionKeys(), ","))
}

func (s Subset) checkSameAsset(other Subset) error {
	if s.key != other.key {
		return &DifferentAssetsError{Left: s.key, Right: other.key}
	}
	return nil
}
