// Package toolkit manages the external reconnaissance tools: resolving
// which binaries are installed and running them with bounded output
// capture and enforced deadlines. Every subprocess the engine starts
// goes through this package.
package toolkit

import (
	"context"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Descriptor is the cached availability record for one tool. A missing
// binary is a valid descriptor with Available=false, never an error.
type Descriptor struct {
	Name      string
	Path      string
	Available bool
	Version   string
	CheckedAt time.Time
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// ProbeVersions runs each tool's version command on first lookup.
	// Probes tolerate nonzero exits; tools like the aircrack suite only
	// print their version inside --help output.
	ProbeVersions bool

	// ProbeTimeout bounds a single version probe. Defaults to 3 seconds.
	ProbeTimeout time.Duration
}

// Registry resolves and caches tool availability. Lookups never fail the
// caller. The cache is scoped to the instance, so independent engines
// (or tests) probe independently; Refresh re-probes a single entry after
// the operator installs something mid-session.
type Registry struct {
	mu    sync.RWMutex
	cache map[string]Descriptor
	tools map[string]ToolInfo
	opts  RegistryOptions
}

// NewRegistry creates a registry seeded with the known tool table.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	return &Registry{
		cache: make(map[string]Descriptor),
		tools: knownTools(),
		opts:  opts,
	}
}

// Register adds or replaces a tool definition and invalidates its cached
// descriptor.
func (r *Registry) Register(info ToolInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[info.Name] = info
	delete(r.cache, info.Name)
}

// Available reports whether the named tool can be invoked.
func (r *Registry) Available(name string) bool {
	return r.Describe(name).Available
}

// Describe returns the descriptor for name, probing on first use. Names
// without a table entry are treated as bare binary names so callers can
// ask about tools the table does not know.
func (r *Registry) Describe(name string) Descriptor {
	r.mu.RLock()
	desc, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return desc
	}
	return r.probe(name)
}

// Refresh discards any cached entry for name and probes again.
func (r *Registry) Refresh(name string) Descriptor {
	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()
	return r.probe(name)
}

// Missing returns the subset of names that are not available, sorted.
func (r *Registry) Missing(names ...string) []string {
	var missing []string
	for _, name := range names {
		if !r.Available(name) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// Descriptors probes every known tool and returns the records sorted by
// name, for the tools listing command.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	descs := make([]Descriptor, 0, len(names))
	for _, name := range names {
		descs = append(descs, r.Describe(name))
	}
	return descs
}

func (r *Registry) probe(name string) Descriptor {
	r.mu.RLock()
	info, known := r.tools[name]
	r.mu.RUnlock()
	if !known {
		info = ToolInfo{Name: name, Binary: name}
	}

	desc := Descriptor{Name: name, CheckedAt: time.Now()}
	if path, err := exec.LookPath(info.Binary); err == nil {
		desc.Path = path
		desc.Available = true
		if r.opts.ProbeVersions && len(info.VersionArgs) > 0 {
			desc.Version = r.probeVersion(path, info.VersionArgs)
		}
	}

	r.mu.Lock()
	r.cache[name] = desc
	r.mu.Unlock()
	return desc
}

// versionPattern matches the first dotted number in probe output, which
// covers "Nmap version 7.94", "Airodump-ng 1.7", "DiG 9.18.24" and the
// hashcat "v6.2.6" form.
var versionPattern = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)*)`)

func (r *Registry) probeVersion(path string, args []string) string {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.ProbeTimeout)
	defer cancel()

	// Version flags on several tools exit nonzero (aircrack --help),
	// so the output matters and the error does not.
	out, _ := exec.CommandContext(ctx, path, args...).CombinedOutput()
	for _, line := range strings.SplitN(string(out), "\n", 4) {
		if m := versionPattern.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}
