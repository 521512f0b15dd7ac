package domain

import "time"

// EventStatus is one stage of a simulated asynchronous operation.
type EventStatus string

// Event statuses in progression order.
const (
	EventScheduled    EventStatus = "scheduled"
	EventNotification EventStatus = "notification"
	EventStarted      EventStatus = "started"
	EventFinished     EventStatus = "finished"
	EventFailed       EventStatus = "failed"
)

// EventAction is the semantic type of an event.
type EventAction string

// Actions emitted by the handler sets.
const (
	ActionLinodeCreate   EventAction = "linode_create"
	ActionLinodeBoot     EventAction = "linode_boot"
	ActionLinodeReboot   EventAction = "linode_reboot"
	ActionLinodeShutdown EventAction = "linode_shutdown"
	ActionLinodeUpdate   EventAction = "linode_update"
	ActionLinodeDelete   EventAction = "linode_delete"

	ActionLinodeConfigCreate EventAction = "linode_config_create"
	ActionLinodeConfigUpdate EventAction = "linode_config_update"
	ActionLinodeConfigDelete EventAction = "linode_config_delete"

	ActionNodeBalancerCreate       EventAction = "nodebalancer_create"
	ActionNodeBalancerUpdate       EventAction = "nodebalancer_update"
	ActionNodeBalancerDelete       EventAction = "nodebalancer_delete"
	ActionNodeBalancerConfigCreate EventAction = "nodebalancer_config_create"
	ActionNodeBalancerConfigUpdate EventAction = "nodebalancer_config_update"
	ActionNodeBalancerConfigDelete EventAction = "nodebalancer_config_delete"
	ActionNodeBalancerNodeCreate   EventAction = "nodebalancer_node_create"
	ActionNodeBalancerNodeUpdate   EventAction = "nodebalancer_node_update"
	ActionNodeBalancerNodeDelete   EventAction = "nodebalancer_node_delete"

	ActionFirewallCreate       EventAction = "firewall_create"
	ActionFirewallUpdate       EventAction = "firewall_update"
	ActionFirewallDelete       EventAction = "firewall_delete"
	ActionFirewallRulesUpdate  EventAction = "firewall_rules_update"
	ActionFirewallDeviceAdd    EventAction = "firewall_device_add"
	ActionFirewallDeviceRemove EventAction = "firewall_device_remove"

	ActionVPCCreate    EventAction = "vpc_create"
	ActionVPCUpdate    EventAction = "vpc_update"
	ActionVPCDelete    EventAction = "vpc_delete"
	ActionSubnetCreate EventAction = "subnet_create"
	ActionSubnetUpdate EventAction = "subnet_update"
	ActionSubnetDelete EventAction = "subnet_delete"

	ActionVolumeCreate EventAction = "volume_create"
	ActionVolumeUpdate EventAction = "volume_update"
	ActionVolumeAttach EventAction = "volume_attach"
	ActionVolumeDetach EventAction = "volume_detach"
	ActionVolumeResize EventAction = "volume_resize"
	ActionVolumeDelete EventAction = "volume_delete"

	ActionDomainCreate       EventAction = "domain_create"
	ActionDomainUpdate       EventAction = "domain_update"
	ActionDomainDelete       EventAction = "domain_delete"
	ActionDomainRecordCreate EventAction = "domain_record_create"
	ActionDomainRecordUpdate EventAction = "domain_record_update"
	ActionDomainRecordDelete EventAction = "domain_record_delete"

	ActionTicketCreate EventAction = "ticket_create"
	ActionTicketUpdate EventAction = "ticket_update"
)

// Event is one visible state transition, as served by the events API.
type Event struct {
	ID              int         `json:"id"`
	Action          EventAction `json:"action"`
	Entity          *EntityRef  `json:"entity"`
	SecondaryEntity *EntityRef  `json:"secondary_entity"`
	Status          EventStatus `json:"status"`
	PercentComplete *int        `json:"percent_complete"`
	Message         *string     `json:"message"`
	Username        string      `json:"username"`
	Seen            bool        `json:"seen"`
	Read            bool        `json:"read"`
	Created         time.Time   `json:"created"`
	// VisibleAt gates when the event is returned to polling consumers.
	VisibleAt time.Time `json:"visible_at"`
}

// Visible reports whether the event may be served at instant now.
func (e Event) Visible(now time.Time) bool { return !e.VisibleAt.After(now) }

// EventCursor records the highest event id acknowledged via mark-seen.
type EventCursor struct {
	ID     int `json:"id"`
	SeenID int `json:"seen_id"`
}
