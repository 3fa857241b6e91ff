package shipwright

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sys/unix"
)

// StatusDatabase is the in-memory index over status paragraphs plus its
// journaled on-disk representation. It is the single source of truth for
// "what is installed" for every triplet. A StatusDatabase is owned
// exclusively by one process for the lifetime of an invocation (§5): the
// advisory flock below guards against a second writer, it is not a
// multi-reader/multi-writer lock.
type StatusDatabase struct {
	root          string
	baselinePath  string
	updatesDir    string
	mu            sync.Mutex
	byKey         map[string]*StatusParagraph
	nextJournalID int
	lockFile      *os.File
}

// vcpkgDir is the fixed subdirectory name under installed/ holding the
// status baseline, journal and per-package listfiles.
const vcpkgDir = "vcpkg"

func statusBaselinePath(root string) string {
	return filepath.Join(root, "installed", vcpkgDir, "status")
}

func statusUpdatesDir(root string) string {
	return filepath.Join(root, "installed", vcpkgDir, "updates")
}

func statusInfoDir(root string) string {
	return filepath.Join(root, "installed", vcpkgDir, "info")
}

func statusLockPath(root string) string {
	return filepath.Join(root, "installed", vcpkgDir, ".lock")
}

// LoadStatusDatabase loads the baseline then replays the journal, in
// filename order, on top of it. The largest journal id observed seeds the
// id of the next insert.
func LoadStatusDatabase(root string) (*StatusDatabase, error) {
	db := &StatusDatabase{
		root:         root,
		baselinePath: statusBaselinePath(root),
		updatesDir:   statusUpdatesDir(root),
		byKey:        make(map[string]*StatusParagraph),
	}

	if err := os.MkdirAll(db.updatesDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(statusInfoDir(root), 0o755); err != nil {
		return nil, err
	}

	lockFile, err := os.OpenFile(statusLockPath(root), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lockFile.Close()
		return nil, &EnvironmentError{Tool: "status database", Msg: fmt.Sprintf("root %q is held by another invocation: %v", root, err)}
	}
	db.lockFile = lockFile

	if err := db.loadBaseline(); err != nil {
		return nil, err
	}
	if err := db.replayJournal(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *StatusDatabase) Close() error {
	if db.lockFile == nil {
		return nil
	}
	unix.Flock(int(db.lockFile.Fd()), unix.LOCK_UN)
	return db.lockFile.Close()
}

func (db *StatusDatabase) loadBaseline() error {
	f, err := os.Open(db.baselinePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	paragraphs, err := ParseParagraphs(f)
	if err != nil {
		return newInternalError("statusdb.go", 0, "corrupt status baseline: %v", err)
	}
	for _, p := range paragraphs {
		sp, err := statusParagraphFromParagraph(p, Triplet{})
		if err != nil {
			return newInternalError("statusdb.go", 0, "corrupt status baseline paragraph: %v", err)
		}
		db.byKey[sp.Key()] = sp
	}
	return nil
}

func (db *StatusDatabase) replayJournal() error {
	entries, err := os.ReadDir(db.updatesDir)
	if err != nil {
		return err
	}
	var ids []int
	byID := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
		byID[id] = e.Name()
	}
	sort.Ints(ids)

	for _, id := range ids {
		path := filepath.Join(db.updatesDir, byID[id])
		f, err := os.Open(path)
		if err != nil {
			return newInternalError("statusdb.go", 0, "cannot read journal entry %d: %v", id, err)
		}
		paragraphs, err := ParseParagraphs(f)
		f.Close()
		if err != nil {
			return newInternalError("statusdb.go", 0, "corrupt journal entry %d: %v", id, err)
		}
		for _, p := range paragraphs {
			sp, err := statusParagraphFromParagraph(p, Triplet{})
			if err != nil {
				return newInternalError("statusdb.go", 0, "corrupt journal entry %d: %v", id, err)
			}
			db.byKey[sp.Key()] = sp
		}
		if id+1 > db.nextJournalID {
			db.nextJournalID = id + 1
		}
	}
	return nil
}

// FindInstalled looks up the current paragraph for (spec, feature) and
// reports it only when its state is INSTALLED; use Find for any state.
func (db *StatusDatabase) FindInstalled(spec PackageSpec, feature string) (*StatusParagraph, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := spec.String() + "#" + feature
	sp, ok := db.byKey[key]
	if !ok || sp.State != StateInstalled {
		return nil, false
	}
	return sp, true
}

// Find looks up the current paragraph regardless of state, used by the
// crash-recovery check for HALF_* paragraphs.
func (db *StatusDatabase) Find(spec PackageSpec, feature string) (*StatusParagraph, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	sp, ok := db.byKey[spec.String()+"#"+feature]
	return sp, ok
}

// IterInstalled returns every paragraph currently in state INSTALLED,
// ordered by PackageSpec for determinism.
func (db *StatusDatabase) IterInstalled() []*StatusParagraph {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*StatusParagraph, 0, len(db.byKey))
	for _, sp := range db.byKey {
		if sp.State == StateInstalled {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Spec.Equal(out[j].Spec) {
			return out[i].Spec.Less(out[j].Spec)
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// InstalledFeatureSet returns the set of feature names currently INSTALLED
// for spec, derived from the feature status paragraphs themselves (the
// core paragraph's Default-Features names what the port ships as defaults,
// not what is actually installed). Used by plan.go to detect a requested
// feature set that differs from what's on disk.
func (db *StatusDatabase) InstalledFeatureSet(spec PackageSpec) map[string]struct{} {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make(map[string]struct{})
	for _, sp := range db.byKey {
		if sp.Spec.Equal(spec) && sp.Feature != "" && sp.State == StateInstalled {
			out[sp.Feature] = struct{}{}
		}
	}
	return out
}

// InstalledByTriplet filters IterInstalled to one triplet, used by the
// conflict scan in install.go.
func (db *StatusDatabase) InstalledByTriplet(triplet Triplet) []*StatusParagraph {
	all := db.IterInstalled()
	out := make([]*StatusParagraph, 0, len(all))
	for _, sp := range all {
		if sp.Spec.Triplet == triplet {
			out = append(out, sp)
		}
	}
	return out
}

// FindAllBySpec returns every paragraph (core plus features) currently
// tracked for spec, in any state except NOT_INSTALLED, sorted by feature
// name with the core paragraph ("") first. Used by RemovePackage, which
// must be able to resume a deinstall left HALF_* by a prior crash as well
// as tear down a fully INSTALLED package.
func (db *StatusDatabase) FindAllBySpec(spec PackageSpec) []*StatusParagraph {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*StatusParagraph
	for _, sp := range db.byKey {
		if sp.Spec.Equal(spec) && sp.State != StateNotInstalled {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feature < out[j].Feature })
	return out
}

// HalfInstalled returns every paragraph left in a HALF_* state, keyed by
// spec string, surfaced to the operator by `shipwright status` as evidence
// of a prior crash.
func (db *StatusDatabase) HalfInstalled() map[string]State {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make(map[string]State)
	for _, sp := range db.byKey {
		if sp.IsHalf() {
			out[sp.Spec.String()] = sp.State
		}
	}
	return out
}

// Insert journals sp to a new numbered update file before mutating the
// in-memory map, so a crash mid-insert leaves a recoverable journal entry
// rather than silently losing the transition.
func (db *StatusDatabase) Insert(sp *StatusParagraph) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, err := sp.toParagraph()
	if err != nil {
		return err
	}

	id := db.nextJournalID
	name := fmt.Sprintf("%010d", id)
	path := filepath.Join(db.updatesDir, name)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteParagraphs(f, []*Paragraph{p}); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	db.nextJournalID = id + 1
	db.byKey[sp.Key()] = sp
	return nil
}

// Compact rewrites the baseline from the in-memory view and deletes the
// journal. The superseded journal entries are archived as a single zstd
// blob rather than discarded outright, cheap insurance for post-mortem
// debugging of a lifecycle bug.
func (db *StatusDatabase) Compact() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.archiveJournal(); err != nil {
		Log.Warn("failed to archive journal before compaction", "error", err)
	}

	paragraphs := make([]*Paragraph, 0, len(db.byKey))
	keys := make([]string, 0, len(db.byKey))
	for k := range db.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p, err := db.byKey[k].toParagraph()
		if err != nil {
			return err
		}
		paragraphs = append(paragraphs, p)
	}

	tmp := db.baselinePath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteParagraphs(f, paragraphs); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, db.baselinePath); err != nil {
		return err
	}

	entries, err := os.ReadDir(db.updatesDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".zst") {
			continue
		}
		if err := os.Remove(filepath.Join(db.updatesDir, e.Name())); err != nil {
			return err
		}
	}
	db.nextJournalID = 0
	return nil
}

func (db *StatusDatabase) archiveJournal() error {
	entries, err := os.ReadDir(db.updatesDir)
	if err != nil {
		return err
	}
	var buf strings.Builder
	any := false
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(db.updatesDir, e.Name()))
		if err != nil {
			continue
		}
		buf.WriteString("--- " + e.Name() + " ---\n")
		buf.Write(data)
		any = true
	}
	if !any {
		return nil
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	defer enc.Close()
	compressed := enc.EncodeAll([]byte(buf.String()), nil)

	archivePath := filepath.Join(db.updatesDir, fmt.Sprintf("compacted-%010d.zst", db.nextJournalID))
	return os.WriteFile(archivePath, compressed, 0o644)
}
