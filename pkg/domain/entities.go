// Package domain defines the mock control-plane entities, table identifiers,
// event records, and error types shared by the store, handlers, and presets.
package domain

import "time"

// Table identifies one logical collection of records in the entity store.
type Table string

// Tables known to the mock backend. Child tables carry a parent id alongside
// each record to model one-to-many ownership.
const (
	TableLinodes                 Table = "linodes"
	TableLinodeConfigs           Table = "linodeConfigs" // child of linodes
	TableNodeBalancers           Table = "nodeBalancers"
	TableNodeBalancerConfigs     Table = "nodeBalancerConfigs"     // child of nodeBalancers
	TableNodeBalancerConfigNodes Table = "nodeBalancerConfigNodes" // child of nodeBalancerConfigs
	TableFirewalls               Table = "firewalls"
	TableFirewallDevices         Table = "firewallDevices" // child of firewalls
	TableVPCs                    Table = "vpcs"
	TableSubnets                 Table = "subnets" // child of vpcs
	TableVPCIPs                  Table = "vpcsIps"
	TableVolumes                 Table = "volumes"
	TableDomains                 Table = "domains"
	TableDomainRecords           Table = "domainRecords" // child of domains
	TableSupportTickets          Table = "supportTickets"
	TableSupportReplies          Table = "supportReplies" // child of supportTickets
	TableQuotas                  Table = "quotas"
	TableEvents                  Table = "events"
	TableEventCursors            Table = "eventCursors"
)

// Tables returns every table in the order parents precede their children.
func Tables() []Table {
	return []Table{
		TableLinodes,
		TableLinodeConfigs,
		TableNodeBalancers,
		TableNodeBalancerConfigs,
		TableNodeBalancerConfigNodes,
		TableFirewalls,
		TableFirewallDevices,
		TableVPCs,
		TableSubnets,
		TableVPCIPs,
		TableVolumes,
		TableDomains,
		TableDomainRecords,
		TableSupportTickets,
		TableSupportReplies,
		TableQuotas,
		TableEvents,
		TableEventCursors,
	}
}

// LinodeStatus enumerates compute instance lifecycle states.
type LinodeStatus string

// Instance states driven by event sequences.
const (
	LinodeProvisioning LinodeStatus = "provisioning"
	LinodeBooting      LinodeStatus = "booting"
	LinodeRunning      LinodeStatus = "running"
	LinodeShuttingDown LinodeStatus = "shutting_down"
	LinodeOffline      LinodeStatus = "offline"
)

// Linode is a compute instance.
type Linode struct {
	ID      int          `json:"id"`
	Label   string       `json:"label"`
	Region  string       `json:"region"`
	Type    string       `json:"type"`
	Image   *string      `json:"image"`
	Status  LinodeStatus `json:"status"`
	IPv4    []string     `json:"ipv4"`
	Tags    []string     `json:"tags"`
	Created time.Time    `json:"created"`
	Updated time.Time    `json:"updated"`
}

// LinodeConfig is a boot configuration profile owned by a Linode.
type LinodeConfig struct {
	ID         int       `json:"id"`
	Label      string    `json:"label"`
	Kernel     string    `json:"kernel"`
	RootDevice string    `json:"root_device"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

// NodeBalancer is a managed load balancer.
type NodeBalancer struct {
	ID                 int       `json:"id"`
	Label              string    `json:"label"`
	Region             string    `json:"region"`
	Hostname           string    `json:"hostname"`
	IPv4               string    `json:"ipv4"`
	ClientConnThrottle int       `json:"client_conn_throttle"`
	Tags               []string  `json:"tags"`
	Created            time.Time `json:"created"`
	Updated            time.Time `json:"updated"`
}

// NodesStatus summarizes backend health for a NodeBalancer config.
type NodesStatus struct {
	Up   int `json:"up"`
	Down int `json:"down"`
}

// NodeBalancerConfig is a port-level configuration belonging to a NodeBalancer.
type NodeBalancerConfig struct {
	ID             int         `json:"id"`
	NodeBalancerID int         `json:"nodebalancer_id"`
	Port           int         `json:"port"`
	Protocol       string      `json:"protocol"`
	Algorithm      string      `json:"algorithm"`
	Stickiness     string      `json:"stickiness"`
	Check          string      `json:"check"`
	CheckInterval  int         `json:"check_interval"`
	CheckTimeout   int         `json:"check_timeout"`
	CheckAttempts  int         `json:"check_attempts"`
	CheckPath      string      `json:"check_path"`
	CipherSuite    string      `json:"cipher_suite"`
	NodesStatus    NodesStatus `json:"nodes_status"`
}

// NodeBalancerConfigNode is a backend node attached to a NodeBalancer config.
type NodeBalancerConfigNode struct {
	ID             int    `json:"id"`
	NodeBalancerID int    `json:"nodebalancer_id"`
	ConfigID       int    `json:"config_id"`
	Label          string `json:"label"`
	Address        string `json:"address"`
	Weight         int    `json:"weight"`
	Mode           string `json:"mode"`
	Status         string `json:"status"`
}

// FirewallRuleAddresses lists the source/destination addresses of a rule.
type FirewallRuleAddresses struct {
	IPv4 []string `json:"ipv4,omitempty"`
	IPv6 []string `json:"ipv6,omitempty"`
}

// FirewallRule is one inbound or outbound rule.
type FirewallRule struct {
	Action      string                `json:"action"`
	Protocol    string                `json:"protocol"`
	Ports       string                `json:"ports,omitempty"`
	Label       string                `json:"label,omitempty"`
	Description string                `json:"description,omitempty"`
	Addresses   FirewallRuleAddresses `json:"addresses"`
}

// FirewallRules is the complete rule set of a firewall.
type FirewallRules struct {
	InboundPolicy  string         `json:"inbound_policy"`
	OutboundPolicy string         `json:"outbound_policy"`
	Inbound        []FirewallRule `json:"inbound"`
	Outbound       []FirewallRule `json:"outbound"`
}

// EntityRef references another entity by id, label, type, and API url.
type EntityRef struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
	URL   string `json:"url"`
}

// Firewall is a cloud firewall.
type Firewall struct {
	ID       int           `json:"id"`
	Label    string        `json:"label"`
	Status   string        `json:"status"`
	Rules    FirewallRules `json:"rules"`
	Entities []EntityRef   `json:"entities"`
	Tags     []string      `json:"tags"`
	Created  time.Time     `json:"created"`
	Updated  time.Time     `json:"updated"`
}

// FirewallDevice attaches a firewall to an entity.
type FirewallDevice struct {
	ID      int       `json:"id"`
	Entity  EntityRef `json:"entity"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// SubnetInterface is an instance interface assigned into a subnet.
type SubnetInterface struct {
	ID       int  `json:"id"`
	Active   bool `json:"active"`
	ConfigID *int `json:"config_id"`
}

// SubnetLinode is an instance assigned to a subnet.
type SubnetLinode struct {
	ID         int               `json:"id"`
	Interfaces []SubnetInterface `json:"interfaces"`
}

// SubnetNodeBalancer is a NodeBalancer assigned to a subnet.
type SubnetNodeBalancer struct {
	ID        int    `json:"id"`
	IPv4Range string `json:"ipv4_range"`
}

// Subnet is an address range inside a VPC.
type Subnet struct {
	ID            int                  `json:"id"`
	Label         string               `json:"label"`
	IPv4          string               `json:"ipv4"`
	Linodes       []SubnetLinode       `json:"linodes"`
	NodeBalancers []SubnetNodeBalancer `json:"nodebalancers"`
	Created       time.Time            `json:"created"`
	Updated       time.Time            `json:"updated"`
}

// HasResources reports whether anything is still assigned to the subnet.
func (s Subnet) HasResources() bool {
	return len(s.Linodes) > 0 || len(s.NodeBalancers) > 0
}

// VPC is a virtual private cloud.
type VPC struct {
	ID          int       `json:"id"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Region      string    `json:"region"`
	Subnets     []Subnet  `json:"subnets"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

// VPCIP is an address allocated to a VPC.
type VPCIP struct {
	ID       int    `json:"id"`
	Address  string `json:"address"`
	VPCID    int    `json:"vpc_id"`
	SubnetID *int   `json:"subnet_id"`
	LinodeID *int   `json:"linode_id"`
	Region   string `json:"region"`
	Active   bool   `json:"active"`
}

// VolumeStatus enumerates block storage volume states.
type VolumeStatus string

// Volume states driven by event sequences.
const (
	VolumeCreating VolumeStatus = "creating"
	VolumeActive   VolumeStatus = "active"
	VolumeResizing VolumeStatus = "resizing"
)

// Volume is a block storage volume.
type Volume struct {
	ID             int          `json:"id"`
	Label          string       `json:"label"`
	Region         string       `json:"region"`
	Size           int          `json:"size"`
	Status         VolumeStatus `json:"status"`
	LinodeID       *int         `json:"linode_id"`
	LinodeLabel    *string      `json:"linode_label"`
	FilesystemPath string       `json:"filesystem_path"`
	Tags           []string     `json:"tags"`
	Created        time.Time    `json:"created"`
	Updated        time.Time    `json:"updated"`
}

// Domain is a DNS zone.
type Domain struct {
	ID          int       `json:"id"`
	Domain      string    `json:"domain"`
	Type        string    `json:"type"`
	SOAEmail    string    `json:"soa_email"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	TTLSec      int       `json:"ttl_sec"`
	Tags        []string  `json:"tags"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

// DomainRecord is a DNS record owned by a Domain.
type DomainRecord struct {
	ID       int       `json:"id"`
	Type     string    `json:"type"`
	Name     string    `json:"name"`
	Target   string    `json:"target"`
	Priority int       `json:"priority"`
	Weight   int       `json:"weight"`
	Port     int       `json:"port"`
	TTLSec   int       `json:"ttl_sec"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

// SupportTicket is a customer support case.
type SupportTicket struct {
	ID          int        `json:"id"`
	Summary     string     `json:"summary"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Entity      *EntityRef `json:"entity"`
	Closable    bool       `json:"closable"`
	OpenedBy    string     `json:"opened_by"`
	UpdatedBy   string     `json:"updated_by"`
	Opened      time.Time  `json:"opened"`
	Updated     time.Time  `json:"updated"`
	Closed      *time.Time `json:"closed"`
}

// SupportReply is a message appended to a SupportTicket.
type SupportReply struct {
	ID          int       `json:"id"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	FromLinode  bool      `json:"from_linode"`
	Created     time.Time `json:"created"`
}

// Quota is a per-service, per-region resource limit.
type Quota struct {
	ID             int    `json:"id"`
	Service        string `json:"service"`
	QuotaName      string `json:"quota_name"`
	Description    string `json:"description"`
	QuotaLimit     int    `json:"quota_limit"`
	ResourceMetric string `json:"resource_metric"`
	Region         string `json:"region"`
}

// QuotaUsage reports consumption against a Quota.
type QuotaUsage struct {
	QuotaLimit int `json:"quota_limit"`
	Usage      int `json:"usage"`
}
