package resolver

import "github.com/nerrad567/slotline/internal/provider"

type eventKind int

const (
	eventPackageAdded eventKind = iota
	eventPackageChanged
	eventPackageRemoved
	eventOverrideSet
	eventOverrideCleared
	eventQueryCompleted
	eventProviderFeatures
	eventSlotEnabled
	eventRecomputeAll
)

func (k eventKind) String() string {
	switch k {
	case eventPackageAdded:
		return "package_added"
	case eventPackageChanged:
		return "package_changed"
	case eventPackageRemoved:
		return "package_removed"
	case eventOverrideSet:
		return "override_set"
	case eventOverrideCleared:
		return "override_cleared"
	case eventQueryCompleted:
		return "query_completed"
	case eventProviderFeatures:
		return "provider_features_changed"
	case eventSlotEnabled:
		return "slot_enabled"
	case eventRecomputeAll:
		return "recompute"
	default:
		return "unknown"
	}
}

// event is one unit of work on the serialized queue. done, when
// non-nil, receives the handler's outcome so callers can surface
// validation errors synchronously.
type event struct {
	kind     eventKind
	pkg      string
	slot     int
	enabled  bool
	features provider.FeatureSet
	done     chan error
}
