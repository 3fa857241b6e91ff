package shipwright

import (
	"os"
	"path/filepath"
	"sort"
)

type ActionKind int

const (
	KindAlreadyInstalled ActionKind = iota
	KindInstall                     // prebuilt binary present in staging, not yet committed
	KindBuildAndInstall
)

func (k ActionKind) String() string {
	switch k {
	case KindAlreadyInstalled:
		return "already installed"
	case KindInstall:
		return "install"
	case KindBuildAndInstall:
		return "build and install"
	default:
		return "unknown"
	}
}

type RequestType int

const (
	RequestUser RequestType = iota
	RequestAuto
)

// InstallPlanAction is the Install variant of Action (§9 design notes:
// tagged variant, no virtual dispatch).
type InstallPlanAction struct {
	Spec        FullPackageSpec
	Kind        ActionKind
	Source      *SourceControlFile
	RequestType RequestType
}

type RemovePlanAction struct {
	Spec PackageSpec
}

// Action is Install(InstallPlanAction) | Remove(RemovePlanAction); exactly
// one of Install/Remove is non-nil.
type Action struct {
	Install *InstallPlanAction
	Remove  *RemovePlanAction
}

func (a Action) Spec() PackageSpec {
	if a.Install != nil {
		return a.Install.Spec.PackageSpec
	}
	return a.Remove.Spec
}

type ActionPlan struct {
	Actions []Action
}

// PortProvider loads a port's SourceControlFile by name; the plan builder
// depends on this instead of the filesystem directly so it can be unit
// tested against a fixed port set.
type PortProvider interface {
	LoadPort(name string) (*SourceControlFile, error)
}

type filesystemPortProvider struct {
	portsDir string
}

func NewFilesystemPortProvider(portsDir string) PortProvider {
	return &filesystemPortProvider{portsDir: portsDir}
}

func (p *filesystemPortProvider) LoadPort(name string) (*SourceControlFile, error) {
	return LoadPort(p.portsDir, name)
}

type closureNode struct {
	spec     FullPackageSpec
	source   *SourceControlFile
	request  RequestType
	depNames []string
}

// BuildPlan walks requests' transitive dependency closure against ports and
// db, and produces a deterministically ordered ActionPlan, per §4.5.
func BuildPlan(requests []FullPackageSpec, db *StatusDatabase, ports PortProvider, packagesDir string) (*ActionPlan, error) {
	nodes := make(map[string]*closureNode)
	order := make([]string, 0)

	var visit func(spec FullPackageSpec, request RequestType, chain []string) error
	visit = func(spec FullPackageSpec, request RequestType, chain []string) error {
		key := spec.PackageSpec.String()
		for _, c := range chain {
			if c == key {
				cyc := make([]PackageSpec, 0, len(chain)+1)
				for _, k := range chain {
					cyc = append(cyc, mustParseSpecKey(k))
				}
				cyc = append(cyc, spec.PackageSpec)
				return &CycleError{Cycle: cyc}
			}
		}

		if existing, ok := nodes[key]; ok {
			for f := range spec.Features {
				existing.spec.Features[f] = struct{}{}
			}
			if request == RequestUser {
				existing.request = RequestUser
			}
			return nil
		}

		source, err := ports.LoadPort(spec.Name)
		if err != nil {
			return err
		}

		node := &closureNode{spec: spec, source: source, request: request}
		nodes[key] = node
		order = append(order, key)

		deps := source.AllDependencies(spec.Features)
		nextChain := append(append([]string{}, chain...), key)
		for _, d := range deps {
			node.depNames = append(node.depNames, d.Name)
			depSpec, err := NewPackageSpec(d.Name, spec.Triplet)
			if err != nil {
				return err
			}
			depFull := NewFullPackageSpec(depSpec, d.Features)
			if err := visit(depFull, RequestAuto, nextChain); err != nil {
				return err
			}
		}
		return nil
	}

	for _, req := range requests {
		if err := visit(req, RequestUser, nil); err != nil {
			return nil, err
		}
	}

	sorted, err := topoSort(nodes, order)
	if err != nil {
		return nil, err
	}

	// Classify in topo order, but emit every Remove before every Install
	// (testable property 4): removes are collected first, in reverse topo
	// order so a dependent is removed before the dependency it used to
	// pin, then installs follow in forward topo order.
	var removes []Action
	var installs []Action
	for _, key := range sorted {
		node := nodes[key]
		kind, _, rebuildNeeded := classify(node, db, packagesDir)
		if rebuildNeeded {
			removes = append(removes, Action{Remove: &RemovePlanAction{Spec: node.spec.PackageSpec}})
		}
		installs = append(installs, Action{Install: &InstallPlanAction{
			Spec:        node.spec,
			Kind:        kind,
			Source:      node.source,
			RequestType: node.request,
		}})
	}
	for i, j := 0, len(removes)-1; i < j; i, j = i+1, j-1 {
		removes[i], removes[j] = removes[j], removes[i]
	}

	plan := &ActionPlan{}
	plan.Actions = append(plan.Actions, removes...)
	plan.Actions = append(plan.Actions, installs...)
	return plan, nil
}

// classify implements §4.5 step 2-3: installed-with-matching-features wins
// ALREADY_INSTALLED; a rebuild is flagged when the feature set on disk
// differs from what was requested. The installed feature set comes from
// the feature status paragraphs themselves (db.InstalledFeatureSet), not
// the core paragraph's Default-Features — BuildPackage never populates
// Default-Features on the paragraph it writes, and Default-Features names
// what the port ships by default, not what a particular install actually
// resolved to.
func classify(node *closureNode, db *StatusDatabase, packagesDir string) (kind ActionKind, installed *StatusParagraph, rebuildNeeded bool) {
	sp, ok := db.FindInstalled(node.spec.PackageSpec, "")
	if ok {
		installedFull := FullPackageSpec{
			PackageSpec: node.spec.PackageSpec,
			Features:    db.InstalledFeatureSet(node.spec.PackageSpec),
		}
		if installedFull.SameFeatureSet(node.spec) {
			return KindAlreadyInstalled, sp, false
		}
		return classifyFresh(node, packagesDir), sp, true
	}
	return classifyFresh(node, packagesDir), nil, false
}

func classifyFresh(node *closureNode, packagesDir string) ActionKind {
	controlPath := filepath.Join(packagesDir, node.spec.PackageSpec.FullStem(), "CONTROL")
	if _, err := os.Stat(controlPath); err == nil {
		return KindInstall
	}
	return KindBuildAndInstall
}

// topoSort orders the closure so dependencies precede dependents, visiting
// roots and each node's dependencies in (name, triplet) order to break ties,
// and reports a cycle as a CycleError. Placing every Remove before every
// Install is done by BuildPlan, not here.
func topoSort(nodes map[string]*closureNode, discovered []string) ([]string, error) {
	visited := make(map[string]int) // 0 unvisited, 1 in-progress, 2 done
	var sorted []string

	keys := append([]string{}, discovered...)
	sort.Slice(keys, func(i, j int) bool {
		return nodes[keys[i]].spec.PackageSpec.Less(nodes[keys[j]].spec.PackageSpec)
	})

	var dfs func(key string, chain []string) error
	dfs = func(key string, chain []string) error {
		switch visited[key] {
		case 2:
			return nil
		case 1:
			cyc := make([]PackageSpec, 0, len(chain)+1)
			for _, k := range chain {
				cyc = append(cyc, mustParseSpecKey(k))
			}
			cyc = append(cyc, mustParseSpecKey(key))
			return &CycleError{Cycle: cyc}
		}
		visited[key] = 1
		node := nodes[key]

		depKeys := make([]string, 0, len(node.depNames))
		for _, name := range node.depNames {
			depKeys = append(depKeys, name+":"+node.spec.Triplet.String())
		}
		sort.Slice(depKeys, func(i, j int) bool {
			return nodes[depKeys[i]].spec.PackageSpec.Less(nodes[depKeys[j]].spec.PackageSpec)
		})

		for _, dk := range depKeys {
			if err := dfs(dk, append(chain, key)); err != nil {
				return err
			}
		}
		visited[key] = 2
		sorted = append(sorted, key)
		return nil
	}

	for _, k := range keys {
		if err := dfs(k, nil); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

func mustParseSpecKey(key string) PackageSpec {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			t, _ := TripletFromCanonical(key[i+1:])
			return PackageSpec{Name: key[:i], Triplet: t}
		}
	}
	return PackageSpec{}
}
