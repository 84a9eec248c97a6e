package voice

import (
	"encoding/json"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voxmcp/voxmcp/internal/errs"
)

// Registry maps agent names to catalogue voice ids for one process. It is
// owned by the dispatcher goroutine; other goroutines only ever see it
// through Snapshot, which takes a short read lock.
type Registry struct {
	mu       sync.RWMutex
	path     string
	bindings map[string]string // agent name -> voice id
	dirty    bool
}

// Snapshot is the read-only view returned to callers and to get_voice_registry.
type Snapshot struct {
	Map            map[string]string
	AvailablePool  []string
	TotalAssigned  int
	TotalAvailable int
}

// New creates an empty registry that persists to path on Save.
func New(path string) *Registry {
	return &Registry{path: path, bindings: make(map[string]string)}
}

// Resolve returns the registered voice for agentName, assigning one if
// the name is unknown: first an exact suffix match against the
// catalogue, then the tiered pool, then an aliased assignment once the
// pool is exhausted.
func (r *Registry) Resolve(agentName string) (voiceID string, newlyAssigned bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.bindings[agentName]; ok {
		return v, false
	}

	lowered := toLower(agentName)

	// Step 2: suffix match against the catalogue.
	for _, v := range Catalogue {
		if suffix(v.ID) == lowered && !r.isBoundLocked(v.ID) {
			r.bindings[agentName] = v.ID
			r.dirty = true
			logrus.WithFields(logrus.Fields{"agent": agentName, "voice": v.ID}).Debug("voice: suffix match assigned")
			return v.ID, true
		}
	}

	// Step 3: priority-tiered pool, deterministic by stable hash of the name.
	if v, ok := r.assignFromPoolLocked(agentName, false); ok {
		return v, true
	}

	// Step 4: pool exhausted, alias into the full catalogue.
	v, _ := r.assignFromPoolLocked(agentName, true)
	logrus.WithField("agent", agentName).Warn("voice: pool exhausted, aliasing assignment")
	return v, true
}

// assignFromPoolLocked must be called with r.mu held. When allowAlias is
// false it only considers voices not already bound to another agent name;
// when true it hashes into the whole catalogue regardless of prior binding.
func (r *Registry) assignFromPoolLocked(agentName string, allowAlias bool) (string, bool) {
	claimed := make(map[string]bool, len(r.bindings))
	for _, v := range r.bindings {
		claimed[v] = true
	}
	chosen, ok := tieredPoolAssign(agentName, claimed, allowAlias)
	if !ok {
		return "", false
	}
	r.bindings[agentName] = chosen
	r.dirty = true
	return chosen, true
}

// tieredPoolAssign is step 3/4 of the §4.1 assignment policy against an
// arbitrary claimed set: a stable hash of the name picks deterministically
// within the highest-priority non-empty tier.
func tieredPoolAssign(agentName string, claimed map[string]bool, allowAlias bool) (string, bool) {
	byTier := make(map[int][]CatalogueVoice)
	for _, v := range Catalogue {
		if !allowAlias && claimed[v.ID] {
			continue
		}
		byTier[v.tier()] = append(byTier[v.tier()], v)
	}

	h := stableHash(agentName)
	for tier := 0; tier <= 3; tier++ {
		candidates := byTier[tier]
		if len(candidates) == 0 {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
		return candidates[h%uint64(len(candidates))].ID, true
	}
	return "", false
}

// AssignTiered implements the same suffix-then-tiered-pool policy as
// Resolve, but against a caller-supplied claimed set instead of this
// process's own bindings: the claimed set there is "every voice held by
// another live session entry", not "every voice this process has bound to
// some agent name".
func AssignTiered(agentName string, claimed map[string]bool) string {
	lowered := toLower(agentName)
	for _, v := range Catalogue {
		if suffix(v.ID) == lowered && !claimed[v.ID] {
			return v.ID
		}
	}
	if v, ok := tieredPoolAssign(agentName, claimed, false); ok {
		return v
	}
	v, _ := tieredPoolAssign(agentName, claimed, true)
	return v
}

// ReconcileIdentity is the session registry's registry.Reconciler: given
// the caller's preferred name and the names/voices held by other live
// session entries, it decides this process's (name, voice) pair.
//
// When the preferred name is free it is kept and a voice assigned the same
// way Resolve would. When another live session already holds it, the next
// identity is drawn from the catalogue itself in tier-priority order: the
// first voice whose id and derived name (the capitalised suffix, e.g.
// am_adam → "Adam") are both unclaimed. A second process starting as
// "Eric" while "Eric"/am_eric is live therefore becomes "Adam"/am_adam,
// not "Eric-2".
func ReconcileIdentity(preferred string, claimedNames, claimedVoices map[string]bool) (string, string) {
	if !claimedNames[preferred] {
		return preferred, AssignTiered(preferred, claimedVoices)
	}

	byTier := make(map[int][]CatalogueVoice)
	for _, v := range Catalogue {
		byTier[v.tier()] = append(byTier[v.tier()], v)
	}
	for tier := 0; tier <= 3; tier++ {
		candidates := byTier[tier]
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
		for _, v := range candidates {
			name := capitalise(suffix(v.ID))
			if !claimedVoices[v.ID] && !claimedNames[name] {
				return name, v.ID
			}
		}
	}

	// Every catalogue identity is claimed by some live session; fall back
	// to a numbered variant of the preferred name with an aliased voice.
	for i := 2; ; i++ {
		candidate := preferred + "-" + strconv.Itoa(i)
		if !claimedNames[candidate] {
			return candidate, AssignTiered(candidate, claimedVoices)
		}
	}
}

func capitalise(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

func (r *Registry) isBoundLocked(voiceID string) bool {
	for _, v := range r.bindings {
		if v == voiceID {
			return true
		}
	}
	return false
}

// Set explicitly binds agentName to voiceID, rejecting unknown voices.
func (r *Registry) Set(agentName, voiceID string) error {
	if _, ok := ByID(voiceID); !ok {
		return errs.Newf(errs.KindInvalidVoice, "voice %q is not in the catalogue", voiceID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[agentName] = voiceID
	r.dirty = true
	return nil
}

// Rename atomically swaps old -> new, rejecting when new is already bound
// to a different voice than old's current binding.
func (r *Registry) Rename(old, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.bindings[old]
	if !ok {
		return errs.Newf(errs.KindInvalidVoice, "agent %q has no voice bound", old)
	}
	if existing, ok := r.bindings[newName]; ok && existing != v && newName != old {
		return errs.Newf(errs.KindNameOccupied, "agent %q is already bound to %q", newName, existing)
	}
	delete(r.bindings, old)
	r.bindings[newName] = v
	r.dirty = true
	return nil
}

// Seed installs pre-configured bindings (the config file's voice_registry
// block) without overwriting anything Load already re-hydrated. Unknown
// voice ids are skipped with a warning rather than failing startup.
func (r *Registry) Seed(bindings map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, voiceID := range bindings {
		if _, bound := r.bindings[name]; bound {
			continue
		}
		if _, ok := ByID(voiceID); !ok {
			logrus.WithFields(logrus.Fields{"agent": name, "voice": voiceID}).Warn("voice: seed entry references unknown voice, skipping")
			continue
		}
		r.bindings[name] = voiceID
		r.dirty = true
	}
}

// Snapshot returns the current map and the pool of catalogue voices not
// currently bound to any agent name.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := Snapshot{Map: make(map[string]string, len(r.bindings))}
	for k, v := range r.bindings {
		out.Map[k] = v
	}
	for _, v := range Catalogue {
		if !r.isBoundLocked(v.ID) {
			out.AvailablePool = append(out.AvailablePool, v.ID)
		}
	}
	out.TotalAssigned = len(r.bindings)
	out.TotalAvailable = len(out.AvailablePool)
	return out
}

// Save persists the registry to disk. Best-effort: callers log failures but
// never treat them as fatal.
func (r *Registry) Save() error {
	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return nil
	}
	data, err := json.MarshalIndent(r.bindings, "", "  ")
	r.dirty = false
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// Load re-hydrates the registry from disk. A missing or malformed file is
// treated as an empty registry, never a startup error.
func (r *Registry) Load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return
	}
	var bindings map[string]string
	if err := json.Unmarshal(data, &bindings); err != nil {
		logrus.WithError(err).Warn("voice: malformed registry file, starting empty")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = bindings
}

// StartPersistTimer saves the registry every interval until stop is closed.
func (r *Registry) StartPersistTimer(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := r.Save(); err != nil {
					logrus.WithError(err).Warn("voice: periodic save failed")
				}
			}
		}
	}()
}

func stableHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
