package channels

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Channel bundles the three pluggable implementations for one channel type.
type Channel struct {
	Connection ConnectionService
	Processor  MessageProcessor
	Bridge     AppointmentBridge
}

// The registry is populated once at process start and read-only afterwards;
// the mutex only guards against sloppy init ordering in tests.
var (
	registryMu sync.RWMutex
	registry   = map[string]Channel{}
)

// Register installs the implementations for channelType. Registering the
// same type twice overwrites the previous entry.
func Register(channelType string, ch Channel) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normalize(channelType)] = ch
}

// Resolve returns the implementations for channelType, failing with
// ErrUnsupportedChannelType when nothing was registered.
func Resolve(channelType string) (Channel, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ch, ok := registry[normalize(channelType)]
	if !ok {
		return Channel{}, fmt.Errorf("%w: %q", ErrUnsupportedChannelType, channelType)
	}
	return ch, nil
}

// Supported reports whether channelType has a registered implementation.
func Supported(channelType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[normalize(channelType)]
	return ok
}

// SupportedTypes lists the registered channel types, sorted.
func SupportedTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Reset clears the registry. Test helper.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = map[string]Channel{}
}

func normalize(channelType string) string {
	return strings.ToLower(strings.TrimSpace(channelType))
}
