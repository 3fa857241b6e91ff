package shipwright

// DependInfo flattens the dependency closure for spec, grounded directly
// on the original's 56-line depend-info command: useful for debugging why
// a cycle error was raised, without running a full plan build.
func DependInfo(spec FullPackageSpec, ports PortProvider) ([]PackageSpec, error) {
	seen := make(map[string]bool)
	var order []PackageSpec

	var visit func(s FullPackageSpec, chain []string) error
	visit = func(s FullPackageSpec, chain []string) error {
		key := s.PackageSpec.String()
		for _, c := range chain {
			if c == key {
				cyc := make([]PackageSpec, 0, len(chain)+1)
				for _, k := range chain {
					cyc = append(cyc, mustParseSpecKey(k))
				}
				cyc = append(cyc, s.PackageSpec)
				return &CycleError{Cycle: cyc}
			}
		}
		if seen[key] {
			return nil
		}
		seen[key] = true

		source, err := ports.LoadPort(s.Name)
		if err != nil {
			return err
		}
		order = append(order, s.PackageSpec)

		nextChain := append(append([]string{}, chain...), key)
		for _, d := range source.AllDependencies(s.Features) {
			depSpec, err := NewPackageSpec(d.Name, s.Triplet)
			if err != nil {
				return err
			}
			if err := visit(NewFullPackageSpec(depSpec, d.Features), nextChain); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(spec, nil); err != nil {
		return nil, err
	}
	return order, nil
}
