// Package models defines the durable record types persisted to the KV
// store: hosts, clusters, and the progress records for rolling cluster
// operations.
package models

import (
	"encoding/json"
	"fmt"
)

// Key layout. All durable state lives under these fixed prefixes in the
// KV store; nothing outside this package should hardcode them.
const (
	HostsDir    = "/commissaire/hosts/"
	ClustersDir = "/commissaire/clusters/"
)

// HostKey returns the KV key holding a host's record.
func HostKey(address string) string {
	return HostsDir + address
}

// ClusterKey returns the KV key holding a cluster's record.
func ClusterKey(name string) string {
	return ClustersDir + name
}

// ClusterRestartKey returns the KV key holding a cluster's restart
// progress record.
func ClusterRestartKey(name string) string {
	return "/commissaire/cluster/" + name + "/restart"
}

// ClusterUpgradeKey returns the KV key holding a cluster's upgrade
// progress record.
func ClusterUpgradeKey(name string) string {
	return "/commissaire/cluster/" + name + "/upgrade"
}

// HostStatus is the host lifecycle state, driven exclusively by the
// investigator worker after creation.
type HostStatus string

const (
	HostInvestigating HostStatus = "investigating"
	HostBootstrapping HostStatus = "bootstrapping"
	HostActive        HostStatus = "active"
	HostInactive      HostStatus = "inactive"
	HostFailed        HostStatus = "failed"
	HostDisassociated HostStatus = "disassociated"
)

// UnknownQuantity is the sentinel for a resource fact not yet measured.
const UnknownQuantity = -1

// Host is a single machine addressable by IP or hostname.
type Host struct {
	Address    string     `json:"address"`
	Status     HostStatus `json:"status"`
	OS         string     `json:"os"`
	CPUs       int        `json:"cpus"`
	Memory     int        `json:"memory"`
	Space      int        `json:"space"`
	LastCheck  *string    `json:"last_check"`
	SSHPrivKey string     `json:"ssh_priv_key,omitempty"`
}

// NewHost builds a Host in its initial "investigating" state.
func NewHost(address string) *Host {
	return &Host{
		Address:   address,
		Status:    HostInvestigating,
		OS:        "",
		CPUs:      UnknownQuantity,
		Memory:    UnknownQuantity,
		Space:     UnknownQuantity,
		LastCheck: nil,
	}
}

// secureHost is the wire shape for the secure projection: every field
// of Host except the private key.
type secureHost struct {
	Address   string     `json:"address"`
	Status    HostStatus `json:"status"`
	OS        string     `json:"os"`
	CPUs      int        `json:"cpus"`
	Memory    int        `json:"memory"`
	Space     int        `json:"space"`
	LastCheck *string    `json:"last_check"`
}

// Secure renders the projection used for persistence and for all HTTP
// responses: the private key is never included.
func (h *Host) Secure() ([]byte, error) {
	return json.Marshal(secureHost{
		Address:   h.Address,
		Status:    h.Status,
		OS:        h.OS,
		CPUs:      h.CPUs,
		Memory:    h.Memory,
		Space:     h.Space,
		LastCheck: h.LastCheck,
	})
}

// BadRecord is returned when a persisted or request JSON payload is
// missing a field this model requires.
type BadRecord struct {
	Field string
}

func (e *BadRecord) Error() string {
	return fmt.Sprintf("record missing required field %q", e.Field)
}

// HostFromJSON decodes a secure-projection Host record and rejects it
// if the address is empty, the one field every Host record must carry.
func HostFromJSON(data []byte) (*Host, error) {
	var h Host
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	if h.Address == "" {
		return nil, &BadRecord{Field: "address"}
	}
	return &h, nil
}

// HostCount is the derived, not-persisted availability triplet for a
// Cluster.
type HostCount struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Unavailable int `json:"unavailable"`
}

// Cluster is a named set of host addresses plus a free-form status.
type Cluster struct {
	Status  string   `json:"status"`
	Hostset []string `json:"hostset"`
}

// NewCluster builds an empty cluster with the default "ok" status.
func NewCluster() *Cluster {
	return &Cluster{Status: "ok", Hostset: []string{}}
}

// clusterWire is what persists to the KV: status and hostset, nothing
// derived.
type clusterWire struct {
	Status  string   `json:"status"`
	Hostset []string `json:"hostset"`
}

// Secure renders the persisted projection of a Cluster.
func (c *Cluster) Secure() ([]byte, error) {
	return json.Marshal(clusterWire{Status: c.Status, Hostset: c.Hostset})
}

// WithHosts renders a Cluster alongside its derived host triplet, the
// shape GET /cluster/{name} returns.
func (c *Cluster) WithHosts(counts HostCount) ([]byte, error) {
	return json.Marshal(struct {
		Status  string    `json:"status"`
		Hostset []string  `json:"hostset"`
		Hosts   HostCount `json:"hosts"`
	}{Status: c.Status, Hostset: c.Hostset, Hosts: counts})
}

// ClusterFromJSON decodes a persisted Cluster record.
func ClusterFromJSON(data []byte) (*Cluster, error) {
	var c Cluster
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Hostset == nil {
		c.Hostset = []string{}
	}
	return &c, nil
}

// HostsetSet returns the cluster's hostset as a set for membership and
// comparison operations; the spec treats the persisted list as
// semantically a set.
func (c *Cluster) HostsetSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Hostset))
	for _, addr := range c.Hostset {
		set[addr] = struct{}{}
	}
	return set
}

// RunStatus is shared by ClusterRestart and ClusterUpgrade.
type RunStatus string

const (
	RunInProcess RunStatus = "in_process"
	RunFinished  RunStatus = "finished"
	RunFailed    RunStatus = "failed"
)

// ClusterRestart tracks the progress of a rolling restart across a
// cluster's hostset.
type ClusterRestart struct {
	Status     RunStatus `json:"status"`
	Restarted  []string  `json:"restarted"`
	InProcess  []string  `json:"in_process"`
	StartedAt  string    `json:"started_at"`
	FinishedAt *string   `json:"finished_at"`
}

// ClusterUpgrade tracks the progress of a rolling upgrade across a
// cluster's hostset, carrying the target version.
type ClusterUpgrade struct {
	Status     RunStatus `json:"status"`
	UpgradeTo  string    `json:"upgrade_to"`
	Upgraded   []string  `json:"upgraded"`
	InProcess  []string  `json:"in_process"`
	StartedAt  string    `json:"started_at"`
	FinishedAt *string   `json:"finished_at"`
}

// Clusters is the envelope model for GET /clusters.
type Clusters struct {
	Clusters []string `json:"clusters"`
}

// Hosts is the envelope model for GET /hosts.
type Hosts struct {
	Hosts []*Host `json:"hosts"`
}
