package telemetry

import (
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/errors"
)

// Host monitor attributes.
const (
	AttributeHostName   = "host.name"
	AttributeHostID     = "host.id"
	AttributeDeviceKind = "host.type"
)

// MonitorSpec describes a monitor to create or refresh.
type MonitorSpec struct {
	Type string
	ID   string
	// ParentID is required for new monitors other than the host. An empty
	// ParentID on an existing monitor keeps its current parent.
	ParentID              string
	Attributes            map[string]string
	ConditionalCollection map[string]string
	DiscoveryTime         time.Time
}

// HostTelemetry is the monitor registry of one resource. It outlives
// collection cycles so monitors and their metric history persist.
//
// The registry maps are guarded for concurrent readers; monitors themselves
// are only mutated by the resource's own cycle.
type HostTelemetry struct {
	hostID string

	mu         sync.RWMutex
	byType     map[string]map[string]*Monitor
	byID       map[string]*Monitor
	namespaces map[string]*ConnectorNamespace
	sequence   uint64
	host       *Monitor

	detected     []string
	strategyTime time.Time
}

// NewHostTelemetry creates the registry and its host monitor.
func NewHostTelemetry(hostID, hostname, deviceKind string) *HostTelemetry {
	t := &HostTelemetry{
		hostID:     hostID,
		byType:     make(map[string]map[string]*Monitor),
		byID:       make(map[string]*Monitor),
		namespaces: make(map[string]*ConnectorNamespace),
	}

	host := newMonitor(connector.MonitorTypeHost, hostID)
	host.attributes[AttributeHostID] = hostID
	host.attributes[AttributeHostName] = hostname
	host.attributes[AttributeDeviceKind] = deviceKind
	t.register(host)
	t.host = host

	return t
}

func (t *HostTelemetry) HostID() string {
	return t.hostID
}

// HostMonitor returns the root monitor.
func (t *HostTelemetry) HostMonitor() *Monitor {
	return t.host
}

// StrategyTime is the reference time of the running cycle stage. Metrics
// collected by the stage carry this time.
func (t *HostTelemetry) StrategyTime() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.strategyTime
}

func (t *HostTelemetry) SetStrategyTime(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.strategyTime = at
}

// DetectedConnectors returns the ids selected by the last detection.
func (t *HostTelemetry) DetectedConnectors() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.detected...)
}

func (t *HostTelemetry) SetDetectedConnectors(ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detected = append([]string(nil), ids...)
}

// Namespace returns the connector's namespace, creating it on first use.
func (t *HostTelemetry) Namespace(connectorID string) *ConnectorNamespace {
	key := strings.ToLower(connectorID)

	t.mu.Lock()
	defer t.mu.Unlock()

	ns, ok := t.namespaces[key]
	if !ok {
		ns = newConnectorNamespace(connectorID)
		t.namespaces[key] = ns
	}
	return ns
}

func (t *HostTelemetry) register(m *Monitor) {
	t.sequence++
	m.sequence = t.sequence
	if t.byType[m.monitorType] == nil {
		t.byType[m.monitorType] = make(map[string]*Monitor)
	}
	t.byType[m.monitorType][m.id] = m
	t.byID[m.id] = m
}

// AddOrUpdateMonitor refreshes the monitor of spec's (type, id) in place, or
// creates and registers it. The returned monitor keeps its identity, and so
// its metric history, across calls.
func (t *HostTelemetry) AddOrUpdateMonitor(spec MonitorSpec) (*Monitor, error) {
	errFactory := errors.New()

	if spec.Type == "" {
		return nil, errFactory.WithData(ErrMissingMonitorType, spec.ID)
	}
	if spec.ID == "" {
		return nil, errFactory.WithData(ErrMissingMonitorID, spec.Type)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	existing := t.byType[spec.Type][spec.ID]

	parentID := spec.ParentID
	if parentID == "" && existing != nil {
		parentID = existing.parentID
	}
	if spec.Type != connector.MonitorTypeHost || spec.ID != t.hostID {
		if err := t.checkParent(spec.ID, parentID); err != nil {
			return nil, err
		}
	}

	m := existing
	if m == nil {
		if other, taken := t.byID[spec.ID]; taken {
			return nil, errFactory.WithData(errors.ErrInvalidArgument,
				"monitor id "+spec.ID+" already used by "+other.String())
		}
		m = newMonitor(spec.Type, spec.ID)
		t.register(m)
	}

	m.parentID = parentID
	if spec.Attributes != nil {
		m.attributes = maps.Clone(spec.Attributes)
	}
	if spec.ConditionalCollection != nil {
		m.conditionalCollection = maps.Clone(spec.ConditionalCollection)
	}
	if !spec.DiscoveryTime.IsZero() {
		m.discoveryTime = spec.DiscoveryTime
	}

	return m, nil
}

// checkParent verifies that parentID resolves to a registered monitor whose
// ancestry does not contain id. Caller holds t.mu.
func (t *HostTelemetry) checkParent(id, parentID string) error {
	errFactory := errors.New()

	if parentID == "" {
		return errFactory.WithData(ErrUnresolvedParent, id+": no parent")
	}
	for current := parentID; current != ""; {
		if current == id {
			return errFactory.WithData(ErrParentCycle, id+" -> "+parentID)
		}
		m, ok := t.byID[current]
		if !ok {
			return errFactory.WithData(ErrUnresolvedParent, id+" -> "+current)
		}
		current = m.parentID
	}
	return nil
}

// FindByID returns the monitor with that id.
func (t *HostTelemetry) FindByID(id string) (*Monitor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.byID[id]
	return m, ok
}

// FindByTypeAndID returns the monitor of that type and id.
func (t *HostTelemetry) FindByTypeAndID(monitorType, id string) (*Monitor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.byType[monitorType][id]
	return m, ok
}

// FindChildren returns the direct children of parentID.
func (t *HostTelemetry) FindChildren(parentID string) []*Monitor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var children []*Monitor
	for _, m := range t.byID {
		if m.parentID == parentID && m.id != parentID {
			children = append(children, m)
		}
	}
	sortByDiscovery(children)
	return children
}

// SelectByType returns a copy of the monitors of one type, by id.
func (t *HostTelemetry) SelectByType(monitorType string) map[string]*Monitor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.byType[monitorType])
}

// ByDiscoveryOrder returns the monitors of one type, oldest first.
func (t *HostTelemetry) ByDiscoveryOrder(monitorType string) []*Monitor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := make([]*Monitor, 0, len(t.byType[monitorType]))
	for _, m := range t.byType[monitorType] {
		list = append(list, m)
	}
	sortByDiscovery(list)
	return list
}

// Types returns the monitor types present in the registry.
func (t *HostTelemetry) Types() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	types := make([]string, 0, len(t.byType))
	for monitorType, monitors := range t.byType {
		if len(monitors) > 0 {
			types = append(types, monitorType)
		}
	}
	sort.Strings(types)
	return types
}

// All returns every monitor, oldest first.
func (t *HostTelemetry) All() []*Monitor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	list := make([]*Monitor, 0, len(t.byID))
	for _, m := range t.byID {
		list = append(list, m)
	}
	sortByDiscovery(list)
	return list
}

// Count returns the number of monitors, host included.
func (t *HostTelemetry) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// MarkPresent sets the present status metric of m to 1.
func (t *HostTelemetry) MarkPresent(m *Monitor, at time.Time) {
	collectNumber(m, PresentMetricName(m.monitorType), 1, at)
}

// MarkMissing sets the present status metric of m to 0. The monitor and its
// history stay in the registry.
func (t *HostTelemetry) MarkMissing(m *Monitor, at time.Time) {
	collectNumber(m, PresentMetricName(m.monitorType), 0, at)
}

// Remove deletes m and every monitor whose parent chain leads to it. The
// host monitor cannot be removed.
func (t *HostTelemetry) Remove(m *Monitor) []*Monitor {
	if m == nil || m == t.host {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.byID[m.id] != m {
		return nil
	}

	removed := []*Monitor{m}
	doomed := map[string]bool{m.id: true}
	for changed := true; changed; {
		changed = false
		for id, candidate := range t.byID {
			if !doomed[id] && doomed[candidate.parentID] {
				doomed[id] = true
				removed = append(removed, candidate)
				changed = true
			}
		}
	}

	for _, r := range removed {
		delete(t.byID, r.id)
		delete(t.byType[r.monitorType], r.id)
	}
	return removed
}

func sortByDiscovery(list []*Monitor) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].sequence < list[j].sequence
	})
}
