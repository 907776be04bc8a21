package telemetry

import (
	"maps"
	"strings"
	"time"
	"unicode"

	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/errors"
)

// Monitor attributes with a meaning to the factory.
const (
	AttributeID                   = "id"
	AttributeConnectorID          = "connector_id"
	AttributeEnclosureType        = "type"
	AttributeAttachedToDeviceID   = "attached_to_device_id"
	AttributeAttachedToDeviceType = "attached_to_device_type"

	// EnclosureTypeComputer marks a general-purpose computer chassis.
	EnclosureTypeComputer = "computer"

	monitorIDSeparator = "_"
)

// BuildMonitorID makes the stable id of a connector-discovered monitor. The
// instance id has its whitespace stripped.
func BuildMonitorID(connectorID, monitorType, hostID, instanceID string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, instanceID)
	return strings.Join([]string{connectorID, monitorType, hostID, stripped}, monitorIDSeparator)
}

// MonitorFactory creates or refreshes the monitors one connector discovers
// on one resource.
type MonitorFactory struct {
	Telemetry     *HostTelemetry
	ConnectorID   string
	DiscoveryTime time.Time
}

// CreateOrUpdate registers the monitor described by attributes. The "id"
// attribute is the connector-supplied instance id.
//
// The parent of a new monitor is, in order: the monitor named by the
// attached_to_device_* attributes; for non-enclosures, the most recently
// discovered computer enclosure, else the only enclosure; else the host.
// An existing monitor keeps its parent unless the attached_to hint names
// one.
func (f *MonitorFactory) CreateOrUpdate(monitorType string, attributes, conditional map[string]string) (*Monitor, error) {
	errFactory := errors.New()

	if monitorType == "" {
		return nil, errFactory.WithData(ErrMissingMonitorType, f.ConnectorID)
	}
	instanceID := strings.TrimSpace(attributes[AttributeID])
	if instanceID == "" {
		return nil, errFactory.WithData(ErrMissingMonitorID, f.ConnectorID+"/"+monitorType)
	}

	hostID := f.Telemetry.HostID()
	id := BuildMonitorID(f.ConnectorID, monitorType, hostID, instanceID)

	attrs := maps.Clone(attributes)
	if attrs == nil {
		attrs = make(map[string]string)
	}
	attrs[AttributeConnectorID] = f.ConnectorID

	parentID := f.attachedParent(attrs)
	if parentID == "" {
		if _, exists := f.Telemetry.FindByTypeAndID(monitorType, id); !exists {
			parentID = f.inferParent(monitorType)
		}
	}

	return f.Telemetry.AddOrUpdateMonitor(MonitorSpec{
		Type:                  monitorType,
		ID:                    id,
		ParentID:              parentID,
		Attributes:            attrs,
		ConditionalCollection: conditional,
		DiscoveryTime:         f.DiscoveryTime,
	})
}

func (f *MonitorFactory) attachedParent(attrs map[string]string) string {
	attachedID := strings.TrimSpace(attrs[AttributeAttachedToDeviceID])
	attachedType := strings.TrimSpace(attrs[AttributeAttachedToDeviceType])
	if attachedID == "" || attachedType == "" {
		return ""
	}
	return BuildMonitorID(f.ConnectorID, attachedType, f.Telemetry.HostID(), attachedID)
}

func (f *MonitorFactory) inferParent(monitorType string) string {
	hostID := f.Telemetry.HostMonitor().ID()
	if monitorType == connector.MonitorTypeEnclosure {
		return hostID
	}

	enclosures := f.Telemetry.ByDiscoveryOrder(connector.MonitorTypeEnclosure)
	for i := len(enclosures) - 1; i >= 0; i-- {
		if strings.EqualFold(enclosures[i].Attribute(AttributeEnclosureType), EnclosureTypeComputer) {
			return enclosures[i].ID()
		}
	}
	if len(enclosures) == 1 {
		return enclosures[0].ID()
	}
	return hostID
}
