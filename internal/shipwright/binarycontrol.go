package shipwright

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BinaryParagraph is the post-build description of one built feature (or
// the core package when Feature == "").
type BinaryParagraph struct {
	Spec            PackageSpec
	Version         string
	Description     string
	Maintainer      string
	Feature         string
	DefaultFeatures []string
	Dependencies    []Dependency
}

func (b BinaryParagraph) DisplayName() string {
	if b.Feature == "" {
		return b.Spec.Name
	}
	return fmt.Sprintf("%s[%s]", b.Spec.Name, b.Feature)
}

// FullStem is the directory/listfile stem: "<name>_<triplet>" for the core
// paragraph, "<name>_<feature>_<triplet>" for a feature paragraph.
func (b BinaryParagraph) FullStem() string {
	if b.Feature == "" {
		return b.Spec.FullStem()
	}
	return b.Spec.Name + "_" + b.Feature + "_" + b.Spec.Triplet.String()
}

// Dir is the staging/packages directory for this paragraph's package.
func (b BinaryParagraph) Dir(packagesDir string) string {
	return filepath.Join(packagesDir, b.Spec.FullStem())
}

func (b BinaryParagraph) toParagraph() (*Paragraph, error) {
	p := NewParagraph()
	if err := p.Set("Package", b.Spec.Name); err != nil {
		return nil, err
	}
	if err := p.Set("Version", b.Version); err != nil {
		return nil, err
	}
	if err := p.Set("Architecture", b.Spec.Triplet.String()); err != nil {
		return nil, err
	}
	if err := p.SetOptional("Maintainer", b.Maintainer); err != nil {
		return nil, err
	}
	if err := p.SetOptional("Description", b.Description); err != nil {
		return nil, err
	}
	if b.Feature != "" {
		if err := p.Set("Feature", b.Feature); err != nil {
			return nil, err
		}
	}
	if len(b.DefaultFeatures) > 0 {
		if err := p.Set("Default-Features", strings.Join(b.DefaultFeatures, ", ")); err != nil {
			return nil, err
		}
	}
	if len(b.Dependencies) > 0 {
		if err := p.Set("Depends", formatDependencyList(b.Dependencies)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func binaryParagraphFromParagraph(p *Paragraph, triplet Triplet) (BinaryParagraph, error) {
	name, ok := p.Get("Package")
	if !ok {
		return BinaryParagraph{}, &InputError{Msg: "paragraph missing Package field"}
	}
	version, _ := p.Get("Version")
	if arch, ok := p.Get("Architecture"); ok && arch != "" {
		if t, err := TripletFromCanonical(arch); err == nil {
			triplet = t
		}
	}
	spec, err := NewPackageSpec(name, triplet)
	if err != nil {
		return BinaryParagraph{}, err
	}
	bp := BinaryParagraph{
		Spec:        spec,
		Version:     version,
		Description: p.GetOr("Description", ""),
		Maintainer:  p.GetOr("Maintainer", ""),
		Feature:     p.GetOr("Feature", ""),
	}
	if defs := p.GetOr("Default-Features", ""); defs != "" {
		for _, d := range strings.Split(defs, ",") {
			bp.DefaultFeatures = append(bp.DefaultFeatures, strings.TrimSpace(d))
		}
	}
	bp.Dependencies = parseDependencyList(p.GetOr("Depends", ""))
	return bp, nil
}

// BinaryControlFile is the CONTROL file written into a package's staging
// directory after a successful build: a core paragraph plus one paragraph
// per built feature.
type BinaryControlFile struct {
	Core     BinaryParagraph
	Features []BinaryParagraph
}

func (b *BinaryControlFile) AllParagraphs() []BinaryParagraph {
	out := make([]BinaryParagraph, 0, 1+len(b.Features))
	out = append(out, b.Core)
	out = append(out, b.Features...)
	return out
}

func WriteBinaryControlFile(path string, bcf *BinaryControlFile) error {
	paragraphs := make([]*Paragraph, 0, 1+len(bcf.Features))
	for _, bp := range bcf.AllParagraphs() {
		p, err := bp.toParagraph()
		if err != nil {
			return err
		}
		paragraphs = append(paragraphs, p)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteParagraphs(f, paragraphs)
}

func ParseBinaryControlFile(paragraphs []*Paragraph, triplet Triplet) (*BinaryControlFile, error) {
	if len(paragraphs) == 0 {
		return nil, &InputError{Msg: "empty binary CONTROL file"}
	}
	core, err := binaryParagraphFromParagraph(paragraphs[0], triplet)
	if err != nil {
		return nil, err
	}
	bcf := &BinaryControlFile{Core: core}
	for _, p := range paragraphs[1:] {
		bp, err := binaryParagraphFromParagraph(p, triplet)
		if err != nil {
			return nil, err
		}
		bcf.Features = append(bcf.Features, bp)
	}
	return bcf, nil
}

func ReadBinaryControlFile(path string, triplet Triplet) (*BinaryControlFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	paragraphs, err := ParseParagraphs(f)
	if err != nil {
		return nil, err
	}
	return ParseBinaryControlFile(paragraphs, triplet)
}
