package shipwright

import "fmt"

type Want int

const (
	WantInstall Want = iota
	WantHold
	WantDeinstall
	WantPurge
)

func (w Want) String() string {
	switch w {
	case WantInstall:
		return "install"
	case WantHold:
		return "hold"
	case WantDeinstall:
		return "deinstall"
	case WantPurge:
		return "purge"
	default:
		return "unknown"
	}
}

func parseWant(s string) (Want, error) {
	switch s {
	case "install":
		return WantInstall, nil
	case "hold":
		return WantHold, nil
	case "deinstall":
		return WantDeinstall, nil
	case "purge":
		return WantPurge, nil
	}
	return 0, newInternalError("status.go", 0, "unknown Want %q", s)
}

type State int

const (
	StateNotInstalled State = iota
	StateHalfInstalled
	StateInstalled
	StateHalfUninstalled
)

func (s State) String() string {
	switch s {
	case StateNotInstalled:
		return "not-installed"
	case StateHalfInstalled:
		return "half-installed"
	case StateInstalled:
		return "installed"
	case StateHalfUninstalled:
		return "half-uninstalled"
	default:
		return "unknown"
	}
}

func parseState(s string) (State, error) {
	switch s {
	case "not-installed":
		return StateNotInstalled, nil
	case "half-installed":
		return StateHalfInstalled, nil
	case "installed":
		return StateInstalled, nil
	case "half-uninstalled":
		return StateHalfUninstalled, nil
	}
	return 0, newInternalError("status.go", 0, "unknown State %q", s)
}

// StatusParagraph is a BinaryParagraph augmented with the two orthogonal
// lifecycle flags described by the paragraph lifecycle state machine.
type StatusParagraph struct {
	BinaryParagraph
	Want  Want
	State State
}

// Key identifies a status entry uniquely: spec plus feature name ("" for
// the core paragraph).
func (sp StatusParagraph) Key() string {
	return sp.Spec.String() + "#" + sp.Feature
}

func (sp StatusParagraph) toParagraph() (*Paragraph, error) {
	p, err := sp.BinaryParagraph.toParagraph()
	if err != nil {
		return nil, err
	}
	if err := p.Set("Want", sp.Want.String()); err != nil {
		return nil, err
	}
	if err := p.Set("Status", sp.State.String()); err != nil {
		return nil, err
	}
	return p, nil
}

func statusParagraphFromParagraph(p *Paragraph, triplet Triplet) (*StatusParagraph, error) {
	bp, err := binaryParagraphFromParagraph(p, triplet)
	if err != nil {
		return nil, err
	}
	wantStr, ok := p.Get("Want")
	if !ok {
		return nil, &InputError{Msg: fmt.Sprintf("status paragraph for %s missing Want", bp.Spec)}
	}
	want, err := parseWant(wantStr)
	if err != nil {
		return nil, err
	}
	stateStr, ok := p.Get("Status")
	if !ok {
		return nil, &InputError{Msg: fmt.Sprintf("status paragraph for %s missing Status", bp.Spec)}
	}
	state, err := parseState(stateStr)
	if err != nil {
		return nil, err
	}
	return &StatusParagraph{BinaryParagraph: bp, Want: want, State: state}, nil
}

// IsHalf reports whether sp is in one of the two crash-indicating states.
func (sp StatusParagraph) IsHalf() bool {
	return sp.State == StateHalfInstalled || sp.State == StateHalfUninstalled
}
