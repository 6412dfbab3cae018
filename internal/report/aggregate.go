// Package report aggregates a session's findings into a deterministic
// report and renders it as text, JSON, or HTML. Rendering the same
// report twice produces identical bytes: ordering is fixed and nothing
// in the output depends on when it was generated.
package report

import (
	"context"
	"runtime"
	"sort"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/darcy0x/nethawk/internal/finding"
)

// SchemaVersion identifies the report layout for downstream consumers.
const SchemaVersion = "1.0"

// Report is the aggregated view of one session.
type Report struct {
	SchemaVersion string     `json:"schema_version"`
	Tool          string     `json:"tool"`
	SessionID     string     `json:"session_id"`
	LabMode       bool       `json:"lab_mode,omitempty"`
	System        SystemInfo `json:"system"`
	Sections      []Section  `json:"sections"`
	Summary       Summary    `json:"summary"`
}

// Section groups the findings of one kind, in render order.
type Section struct {
	Kind     finding.Kind      `json:"kind"`
	Findings []finding.Finding `json:"findings"`
}

// Summary carries the counts reports print up front.
type Summary struct {
	Total      int                  `json:"total"`
	ByKind     map[finding.Kind]int `json:"by_kind"`
	BySeverity map[string]int       `json:"by_severity"`
}

// SystemInfo describes the machine the scans ran from. Collected once
// at aggregation time so renders stay reproducible.
type SystemInfo struct {
	Hostname string `json:"hostname,omitempty"`
	OS       string `json:"os"`
	Platform string `json:"platform,omitempty"`
	Kernel   string `json:"kernel,omitempty"`
	Arch     string `json:"arch"`
}

// CollectSystem gathers host details for the report header. Failures
// degrade to the compile-time values.
func CollectSystem(ctx context.Context) SystemInfo {
	sys := SystemInfo{OS: runtime.GOOS, Arch: runtime.GOARCH}
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return sys
	}
	sys.Hostname = info.Hostname
	sys.Platform = info.Platform
	if info.PlatformVersion != "" {
		sys.Platform += " " + info.PlatformVersion
	}
	sys.Kernel = info.KernelVersion
	if info.KernelArch != "" {
		sys.Arch = info.KernelArch
	}
	return sys
}

// Aggregate deduplicates and orders a session's findings. Repeated
// observations of the same fact collapse to the latest one: same kind,
// same natural key, newest discovery timestamp wins, with slice order
// breaking exact ties. Sections follow the fixed kind order; findings
// within a section sort by discovery time, then natural key.
func Aggregate(sessionID string, labMode bool, findings []finding.Finding, sys SystemInfo) *Report {
	type slot struct {
		f     finding.Finding
		index int
	}
	latest := make(map[string]slot, len(findings))
	for i, f := range findings {
		key := string(f.Kind) + "\x00" + f.NaturalKey
		prev, ok := latest[key]
		if !ok || f.DiscoveredAt.After(prev.f.DiscoveredAt) ||
			(f.DiscoveredAt.Equal(prev.f.DiscoveredAt) && i > prev.index) {
			latest[key] = slot{f: f, index: i}
		}
	}

	byKind := make(map[finding.Kind][]finding.Finding)
	for _, s := range latest {
		byKind[s.f.Kind] = append(byKind[s.f.Kind], s.f)
	}

	rep := &Report{
		SchemaVersion: SchemaVersion,
		Tool:          "nethawk",
		SessionID:     sessionID,
		LabMode:       labMode,
		System:        sys,
		Summary: Summary{
			ByKind:     make(map[finding.Kind]int),
			BySeverity: make(map[string]int),
		},
	}

	for _, kind := range finding.KindOrder() {
		group := byKind[kind]
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if !group[i].DiscoveredAt.Equal(group[j].DiscoveredAt) {
				return group[i].DiscoveredAt.Before(group[j].DiscoveredAt)
			}
			return group[i].NaturalKey < group[j].NaturalKey
		})
		rep.Sections = append(rep.Sections, Section{Kind: kind, Findings: group})
		rep.Summary.ByKind[kind] = len(group)
		rep.Summary.Total += len(group)
		for _, f := range group {
			rep.Summary.BySeverity[f.Severity.String()]++
		}
	}
	return rep
}
