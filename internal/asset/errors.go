package asset

import (
	"errors"
	"fmt"
)

// DifferentAssetsError is returned when two subsets for different assets
// are combined. This always indicates a programming error: subsets only
// have meaning relative to a single asset, so the whole evaluation pass
// for the asset must abort.
type DifferentAssetsError struct {
	Left  Key
	Right Key
}

func (e *DifferentAssetsError) Error() string {
	return fmt.Sprintf("cannot combine subsets for different assets: %q and %q", e.Left, e.Right)
}

// IsDifferentAssets reports whether err is a DifferentAssetsError.
// Uses errors.As to handle wrapped errors.
func IsDifferentAssets(err error) bool {
	var de *DifferentAssetsError
	return errors.As(err, &de)
}

// UnknownPartitionError is returned when a subset is constructed with a
// partition key that does not exist in the asset's partitions definition.
type UnknownPartitionError struct {
	Asset        Key
	PartitionKey string
}

func (e *UnknownPartitionError) Error() string {
	return fmt.Sprintf("asset %q has no partition %q", e.Asset, e.PartitionKey)
}

// IsUnknownPartition reports whether err is an UnknownPartitionError.
func IsUnknownPartition(err error) bool {
	var ue *UnknownPartitionError
	return errors.As(err, &ue)
}

// UnknownAssetError is returned by graph lookups for keys that were
// never registered.
type UnknownAssetError struct {
	Asset Key
}

func (e *UnknownAssetError) Error() string {
	return fmt.Sprintf("unknown asset %q", e.Asset)
}

// IsUnknownAsset reports whether err is an UnknownAssetError.
func IsUnknownAsset(err error) bool {
	var ue *UnknownAssetError
	return errors.As(err, &ue)
}
