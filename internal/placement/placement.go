// Package placement decides where dataset replicas go.
//
// The planner is a pure function over the tiers a dataset writes and
// the storage nodes its policy assigns. It never talks to the store or
// the transfer system; callers attach the resulting requests to a
// workflow and persist them as part of their own transaction.
package placement

import "sort"

// TierSets groups a dataset's output data tiers by the storage
// pathway that produces them. A tier may appear in more than one set.
type TierSets struct {
	// Tape holds tiers written to tape-eligible storage.
	Tape []string

	// Disk holds tiers written to disk-eligible storage.
	Disk []string

	// Skim holds tiers produced by physics skims.
	Skim []string

	// Alca holds tiers produced by alignment/calibration skims.
	Alca []string
}

// Nodes names the storage nodes available to a dataset. Any field may
// be empty. Archival is consulted only when Tape is empty.
type Nodes struct {
	Tape     string
	Disk     string
	Archival string
}

// SubscriptionRequest asks the transfer system to place one data tier
// of one dataset. An empty DataTier covers every tier of the dataset.
type SubscriptionRequest struct {
	Dataset  string
	DataTier string

	CustodialSites    []string
	NonCustodialSites []string
	AutoApproveSites  []string

	Priority          string
	CustodialGroup    string
	NonCustodialGroup string

	DeleteFromSource bool
	IsSkim           bool
}

const (
	priorityHigh      = "high"
	custodialGroup    = "DataOps"
	nonCustodialGroup = "AnalysisOps"
)

// Plan computes the subscription requests for one dataset. The result
// is deterministic: categories are emitted in a fixed order and tiers
// are sorted within each category. With neither a tape nor an archival
// node Plan returns nil.
func Plan(dataset string, tiers TierSets, nodes Nodes) []SubscriptionRequest {
	if nodes.Tape != "" {
		return planTape(dataset, tiers, nodes)
	}
	if nodes.Archival != "" {
		return planArchival(dataset, tiers, nodes.Archival)
	}
	return nil
}

func planTape(dataset string, tiers TierSets, nodes Nodes) []SubscriptionRequest {
	tape := newTierSet(tiers.Tape)
	disk := newTierSet(tiers.Disk)
	if nodes.Disk == "" {
		disk = tierSet{}
	}

	var reqs []SubscriptionRequest

	// Tiers going to both tape and disk get a dual request, with the
	// disk leg pre-approved.
	for _, tier := range tape.intersect(disk) {
		reqs = append(reqs, SubscriptionRequest{
			Dataset:           dataset,
			DataTier:          tier,
			CustodialSites:    []string{nodes.Tape},
			NonCustodialSites: []string{nodes.Disk},
			AutoApproveSites:  []string{nodes.Disk},
			Priority:          priorityHigh,
			CustodialGroup:    custodialGroup,
			NonCustodialGroup: nonCustodialGroup,
			DeleteFromSource:  true,
		})
	}

	for _, tier := range sortedUnique(tiers.Skim) {
		req := SubscriptionRequest{
			Dataset:          dataset,
			DataTier:         tier,
			CustodialSites:   []string{nodes.Tape},
			Priority:         priorityHigh,
			CustodialGroup:   custodialGroup,
			DeleteFromSource: true,
			IsSkim:           true,
		}
		if nodes.Disk != "" {
			req.NonCustodialSites = []string{nodes.Disk}
			req.NonCustodialGroup = nonCustodialGroup
			req.AutoApproveSites = []string{nodes.Disk}
		}
		reqs = append(reqs, req)
	}

	// Tape-only tiers are custodial and require operator approval.
	for _, tier := range tape.subtract(disk) {
		reqs = append(reqs, SubscriptionRequest{
			Dataset:          dataset,
			DataTier:         tier,
			CustodialSites:   []string{nodes.Tape},
			Priority:         priorityHigh,
			CustodialGroup:   custodialGroup,
			DeleteFromSource: true,
		})
	}

	for _, tier := range sortedUnique(tiers.Alca) {
		reqs = append(reqs, SubscriptionRequest{
			Dataset:          dataset,
			DataTier:         tier,
			CustodialSites:   []string{nodes.Tape},
			Priority:         priorityHigh,
			CustodialGroup:   custodialGroup,
			DeleteFromSource: true,
			IsSkim:           true,
		})
	}

	for _, tier := range disk.subtract(tape) {
		reqs = append(reqs, SubscriptionRequest{
			Dataset:           dataset,
			DataTier:          tier,
			NonCustodialSites: []string{nodes.Disk},
			AutoApproveSites:  []string{nodes.Disk},
			Priority:          priorityHigh,
			NonCustodialGroup: nonCustodialGroup,
			DeleteFromSource:  true,
		})
	}

	return reqs
}

func planArchival(dataset string, tiers TierSets, node string) []SubscriptionRequest {
	var reqs []SubscriptionRequest
	all := make([]string, 0, len(tiers.Tape)+len(tiers.Disk)+len(tiers.Skim)+len(tiers.Alca))
	all = append(all, tiers.Tape...)
	all = append(all, tiers.Disk...)
	all = append(all, tiers.Skim...)
	all = append(all, tiers.Alca...)

	for _, tier := range sortedUnique(all) {
		reqs = append(reqs, SubscriptionRequest{
			Dataset:          dataset,
			DataTier:         tier,
			CustodialSites:   []string{node},
			AutoApproveSites: []string{node},
			Priority:         priorityHigh,
			CustodialGroup:   custodialGroup,
			DeleteFromSource: true,
		})
	}
	return reqs
}

type tierSet map[string]struct{}

func newTierSet(tiers []string) tierSet {
	s := make(tierSet, len(tiers))
	for _, t := range tiers {
		s[t] = struct{}{}
	}
	return s
}

func (s tierSet) intersect(other tierSet) []string {
	var out []string
	for t := range s {
		if _, ok := other[t]; ok {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func (s tierSet) subtract(other tierSet) []string {
	var out []string
	for t := range s {
		if _, ok := other[t]; !ok {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func sortedUnique(tiers []string) []string {
	seen := make(map[string]struct{}, len(tiers))
	var out []string
	for _, t := range tiers {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
