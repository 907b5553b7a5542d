// Package dupes implements visual duplicate detection over the blob
// registry: pairwise scoring by four perceptual hashes and an embedding
// vector, connected-component grouping, and verdict bookkeeping with
// carry-over across re-runs.
package dupes

import (
	"errors"
	"fmt"
	"sort"

	"go-favorites-archive/internal/media"
	"go-favorites-archive/internal/models"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrInvalidVerdict is returned for verdict values or placements the
	// group rules forbid.
	ErrInvalidVerdict = errors.New("invalid verdict")
	// ErrInvalidSensitivities is returned when the animated profile is
	// looser than the regular one.
	ErrInvalidSensitivities = errors.New("invalid detection sensitivities")
	// ErrUnknownGroup is returned for operations on a group key the
	// registry does not hold.
	ErrUnknownGroup = errors.New("unknown duplicate group")
)

// Engine runs detection and verdict operations over one archive state.
// Single mutating caller assumed, as everywhere in the engine.
type Engine struct {
	state *models.State
}

// New builds an Engine over state.
func New(state *models.State) *Engine {
	return &Engine{state: state}
}

// ValidateSensitivities enforces the profile ordering: for every
// method, the animated threshold must be at least as strict as the
// regular one, or disabled. Animated hashes are noisier, so a looser
// animated profile would flood the registry with false merges. For the
// hash methods that also forbids enabling a method for animated blobs
// only; any finite distance is looser than "never matches".
func ValidateSensitivities(cfg models.DetectionConfig) error {
	for _, method := range models.AllMethods {
		reg, anim := cfg.Regular.Method(method), cfg.Animated.Method(method)
		if anim < 0 {
			continue // disabled is always acceptable
		}
		if method == models.MethodEmbedding {
			if reg >= 0 && anim < reg {
				return fmt.Errorf("%w: animated %s similarity %.3f below regular %.3f",
					ErrInvalidSensitivities, method, anim, reg)
			}
			continue
		}
		if reg < 0 {
			return fmt.Errorf("%w: animated %s enabled while regular is disabled",
				ErrInvalidSensitivities, method)
		}
		if anim > reg {
			return fmt.Errorf("%w: animated %s distance %d above regular %d",
				ErrInvalidSensitivities, method, int(anim), int(reg))
		}
	}
	return nil
}

// pairScores holds the qualifying per-method scores for one unordered
// digest pair.
type pairScores map[string]float64

// scorePair scores two blobs under profile. The returned map holds one
// entry per enabled method that qualifies; an empty map means the pair
// does not form an edge.
func scorePair(a, b *models.Blob, profile models.Sensitivities) pairScores {
	scores := make(pairScores)
	hashPairs := []struct {
		method string
		av, bv uint64
	}{
		{models.MethodPercept, a.Percept, b.Percept},
		{models.MethodAverage, a.Average, b.Average},
		{models.MethodDiff, a.Diff, b.Diff},
		{models.MethodWavelet, a.Wavelet, b.Wavelet},
	}
	for _, hp := range hashPairs {
		if !profile.Enabled(hp.method) {
			continue
		}
		if dist := media.HammingDistance(hp.av, hp.bv); float64(dist) <= profile.Method(hp.method) {
			scores[hp.method] = float64(dist)
		}
	}
	if profile.Enabled(models.MethodEmbedding) {
		if sim := media.CosineSimilarity(a.Embedding, b.Embedding); sim >= profile.CNN {
			scores[models.MethodEmbedding] = sim
		}
	}
	return scores
}

// Stats summarizes one detection run.
type Stats struct {
	Compared int // pairs scored
	Edges    int // pairs that qualified under at least one method
	Groups   int // groups in the registry after the run
	Carried  int // groups kept untouched because membership was unchanged
}

// RunDetection recomputes the duplicate registry from scratch over the
// current blob set. Pairs are only compared within the same animation
// class, under that class's threshold profile; any one qualifying
// method forms an edge and connected components become groups. A
// recomputed group whose membership exactly matches an existing one is
// left untouched; otherwise member verdicts carry over individually and
// unmatched members start as "new".
func (e *Engine) RunDetection() (Stats, error) {
	if err := ValidateSensitivities(e.state.Detection); err != nil {
		return Stats{}, err
	}

	digests := make([]string, 0, len(e.state.Blobs))
	for digest := range e.state.Blobs {
		digests = append(digests, digest)
	}
	sort.Strings(digests)

	var stats Stats
	parent := make(map[string]string, len(digests))
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for _, d := range digests {
		parent[d] = d
	}

	edgeScores := make(map[string]pairScores)
	for i := 0; i < len(digests); i++ {
		a := e.state.Blobs[digests[i]]
		for j := i + 1; j < len(digests); j++ {
			b := e.state.Blobs[digests[j]]
			if a.Animated != b.Animated {
				continue
			}
			profile := e.state.Detection.Regular
			if a.Animated {
				profile = e.state.Detection.Animated
			}
			stats.Compared++
			scores := scorePair(a, b, profile)
			if len(scores) == 0 {
				continue
			}
			stats.Edges++
			edgeScores[models.PairKey(digests[i], digests[j])] = scores
			union(digests[i], digests[j])
		}
	}

	components := make(map[string][]string)
	for _, d := range digests {
		root := find(d)
		components[root] = append(components[root], d)
	}

	oldRegistry := e.state.Duplicates
	oldIndex := e.state.DuplicateIndex
	newRegistry := make(map[string]*models.DuplicateGroup)
	newIndex := make(map[string]string)

	for _, members := range components {
		if len(members) < 2 {
			continue
		}
		key := models.GroupKey(members)
		if existing, ok := oldRegistry[key]; ok {
			newRegistry[key] = existing
			stats.Carried++
		} else {
			group := &models.DuplicateGroup{
				Sources:  make(map[string]map[string]float64),
				Verdicts: make(map[string]models.Verdict),
			}
			for i := 0; i < len(members); i++ {
				for j := i + 1; j < len(members); j++ {
					pk := models.PairKey(members[i], members[j])
					for method, score := range edgeScores[pk] {
						if group.Sources[method] == nil {
							group.Sources[method] = make(map[string]float64)
						}
						group.Sources[method][pk] = score
					}
				}
			}
			for _, digest := range members {
				group.Verdicts[digest] = models.VerdictNew
				if oldKey, ok := oldIndex[digest]; ok {
					if oldGroup, ok := oldRegistry[oldKey]; ok {
						if v, ok := oldGroup.Verdicts[digest]; ok {
							group.Verdicts[digest] = v
						}
					}
				}
			}
			newRegistry[key] = group
		}
		for _, digest := range members {
			newIndex[digest] = key
		}
	}

	e.state.Duplicates = newRegistry
	e.state.DuplicateIndex = newIndex
	stats.Groups = len(newRegistry)
	log.Infof("Duplicate detection: %d pairs compared, %d edges, %d group(s) (%d carried)",
		stats.Compared, stats.Edges, stats.Groups, stats.Carried)
	return stats, nil
}

// SetVerdict records a user decision for one member of a group.
//
// Two-member groups enforce symmetric "false": marking one member false
// marks both, and clearing one side back to a real verdict resets a
// leftover false on the other side to "new". Groups of three or more
// reject "false" outright, since a pairwise non-match cannot be
// expressed on a single member there.
func (e *Engine) SetVerdict(groupKey, digest string, verdict models.Verdict) error {
	if !models.ValidVerdict(verdict) {
		return fmt.Errorf("%w: %q", ErrInvalidVerdict, verdict)
	}
	group, ok := e.state.Duplicates[groupKey]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, groupKey)
	}
	if _, ok := group.Verdicts[digest]; !ok {
		return fmt.Errorf("%w: digest %s is not a member of group %s", ErrInvalidVerdict, digest, groupKey)
	}

	if len(group.Verdicts) == 2 {
		var other string
		for d := range group.Verdicts {
			if d != digest {
				other = d
			}
		}
		group.Verdicts[digest] = verdict
		if verdict == models.VerdictFalse {
			group.Verdicts[other] = models.VerdictFalse
		} else if group.Verdicts[other] == models.VerdictFalse {
			group.Verdicts[other] = models.VerdictNew
		}
		return nil
	}

	if verdict == models.VerdictFalse {
		return fmt.Errorf("%w: %q not allowed in a group of %d members",
			ErrInvalidVerdict, verdict, len(group.Verdicts))
	}
	group.Verdicts[digest] = verdict
	return nil
}

// SetLocationVerdict records a decision for one identical-content
// occurrence of a blob. "false" makes no sense for byte-identical
// content and is rejected.
func (e *Engine) SetLocationVerdict(digest string, userID, folderID, imageID int64, verdict models.Verdict) error {
	if !models.ValidVerdict(verdict) || verdict == models.VerdictFalse {
		return fmt.Errorf("%w: %q for identical location", ErrInvalidVerdict, verdict)
	}
	blob, ok := e.state.Blobs[digest]
	if !ok {
		return fmt.Errorf("%w: unknown digest %s", ErrInvalidVerdict, digest)
	}
	loc, ok := blob.Locations[models.LocationKey(userID, folderID, imageID)]
	if !ok {
		return fmt.Errorf("%w: no such location on %s", ErrInvalidVerdict, digest)
	}
	loc.Verdict = verdict
	return nil
}

// NormalizeIdenticalVerdicts resets location verdicts on blobs with a
// single remaining occurrence. Keep/skip decisions only mean something
// among multiple identical copies; once only one copy is left the
// decision is vacuous and would silently misapply if a copy reappears.
func (e *Engine) NormalizeIdenticalVerdicts() int {
	reset := 0
	for _, blob := range e.state.Blobs {
		if len(blob.Locations) != 1 {
			continue
		}
		for _, loc := range blob.Locations {
			if loc.Verdict != models.VerdictNew {
				loc.Verdict = models.VerdictNew
				reset++
			}
		}
	}
	if reset > 0 {
		log.Infof("Reset %d vacuous identical-location verdict(s)", reset)
	}
	return reset
}

// TrimDeletedBlob removes a digest from the duplicate registry after
// its blob is deleted. A two-member group disappears entirely. In a
// larger group the digest's verdicts and pair scores are dropped, the
// survivors' keep/skip verdicts reset to "new" (the decision was made
// against a member that no longer exists), false verdicts stay, and
// the group is re-keyed under its new membership.
func (e *Engine) TrimDeletedBlob(digest string) {
	oldKey, ok := e.state.DuplicateIndex[digest]
	if !ok {
		return
	}
	group, ok := e.state.Duplicates[oldKey]
	if !ok {
		delete(e.state.DuplicateIndex, digest)
		return
	}

	if len(group.Verdicts) <= 2 {
		for member := range group.Verdicts {
			delete(e.state.DuplicateIndex, member)
		}
		delete(e.state.Duplicates, oldKey)
		return
	}

	delete(group.Verdicts, digest)
	delete(e.state.DuplicateIndex, digest)
	for method, pairs := range group.Sources {
		for pk := range pairs {
			for _, member := range models.SplitGroupKey(pk) {
				if member == digest {
					delete(pairs, pk)
					break
				}
			}
		}
		if len(pairs) == 0 {
			delete(group.Sources, method)
		}
	}
	for member, verdict := range group.Verdicts {
		if verdict == models.VerdictKeep || verdict == models.VerdictSkip {
			group.Verdicts[member] = models.VerdictNew
		}
	}

	newKey := models.GroupKey(group.Digests())
	delete(e.state.Duplicates, oldKey)
	e.state.Duplicates[newKey] = group
	for member := range group.Verdicts {
		e.state.DuplicateIndex[member] = newKey
	}
}
