package pipeline

import (
	"hash/fnv"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// Pair is one (parent id, child id) relation.
type Pair struct {
	ParentID string
	ChildID  string
}

// Derivation is the outcome of applying a join rule: the target pairs, in
// derivation order, and any child records that had to be created for them.
type Derivation struct {
	Pairs       []Pair
	NewChildren []*model.Record
}

// DerivePairs computes the relation pairs that should exist for join, given
// the current parent and child tables. children is not modified; children
// synthesized from list tokens are returned in NewChildren.
func DerivePairs(join *model.JoinSchema, parents, children *model.Table, now time.Time) Derivation {
	switch join.Rule.Kind {
	case model.JoinExplicit:
		return Derivation{Pairs: explicitPairs(join, parents, children)}
	case model.JoinDelimited:
		return delimitedPairs(join, parents, children, now)
	case model.JoinFanOut:
		ids := childIDs(children)
		var pairs []Pair
		for _, p := range parents.Records {
			pairs = append(pairs, fanOut(p.ID(), ids, *join.Rule.FanOut)...)
		}
		return Derivation{Pairs: pairs}
	}
	return Derivation{}
}

// explicitPairs pairs each child with the parent it names through its
// foreign key, or failing that through a "<parent_id>_" id prefix. The
// longest matching parent id wins.
func explicitPairs(join *model.JoinSchema, parents, children *model.Table) []Pair {
	idx := parents.Index()
	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return len(ids[i]) > len(ids[j]) })

	fkCol := ""
	if children.Schema.Has(join.Parent.Key) {
		fkCol = join.Parent.Key
	}

	var pairs []Pair
	for _, c := range children.Records {
		cid := c.ID()
		if cid == "" {
			continue
		}
		if fkCol != "" {
			if ref := c.Get(fkCol); ref != "" && idx[ref] != nil {
				pairs = append(pairs, Pair{ParentID: ref, ChildID: cid})
				continue
			}
		}
		for _, pid := range ids {
			if strings.HasPrefix(cid, pid+"_") {
				pairs = append(pairs, Pair{ParentID: pid, ChildID: cid})
				break
			}
		}
	}
	return pairs
}

func delimitedPairs(join *model.JoinSchema, parents, children *model.Table, now time.Time) Derivation {
	var d Derivation
	byID := children.Index()
	byName := make(map[string]string, len(byID))
	for id, c := range byID {
		byName[strings.ToLower(strings.TrimSpace(children.Schema.DisplayName(c)))] = id
	}
	ids := childIDs(children)
	prefix := join.Rule.ChildPrefix
	if prefix == "" {
		prefix = children.Schema.IDPrefix
	}
	ts := model.FormatTimestamp(now)

	for _, p := range parents.Records {
		pid := p.ID()
		if pid == "" {
			continue
		}
		tokens := SplitList(p.Get(join.Rule.ListField))
		if len(tokens) == 0 {
			if join.Rule.Fallback != nil {
				d.Pairs = append(d.Pairs, fanOut(pid, ids, *join.Rule.Fallback)...)
			}
			continue
		}
		for _, tok := range tokens {
			slug := Slug(tok)
			if slug == "" {
				continue
			}
			cid := prefix + "_" + slug
			if byID[cid] == nil {
				if existing, ok := byName[strings.ToLower(tok)]; ok {
					cid = existing
				} else {
					c := model.NewRecord(children.Schema)
					_ = c.Set(children.Schema.PrimaryKey, cid)
					if nf := children.Schema.NameField; nf != "" {
						_ = c.Set(nf, tok)
					}
					_ = c.Set(model.CreatedAtField, ts)
					_ = c.Set(model.UpdatedAtField, ts)
					byID[cid] = c
					byName[strings.ToLower(tok)] = cid
					d.NewChildren = append(d.NewChildren, c)
				}
			}
			d.Pairs = append(d.Pairs, Pair{ParentID: pid, ChildID: cid})
		}
	}
	return d
}

// fanOut picks between r.Min and r.Max children for parentID. Quantity and
// choice depend only on parentID and the set of child ids.
func fanOut(parentID string, childIDs []string, r model.FanOutRange) []Pair {
	if parentID == "" || len(childIDs) == 0 {
		return nil
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(parentID))
	sum := int(h.Sum32() & 0x7fffffff)

	n := r.Min
	if span := r.Max - r.Min + 1; span > 1 {
		n += sum % span
	}
	if n > len(childIDs) {
		n = len(childIDs)
	}
	start := sum % len(childIDs)
	pairs := make([]Pair, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, Pair{ParentID: parentID, ChildID: childIDs[(start+i)%len(childIDs)]})
	}
	return pairs
}

func childIDs(t *model.Table) []string {
	idx := t.Index()
	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reconcile appends a relation row to existing for every pair whose
// composite key is not already present, and returns the rows it added.
// Existing rows are never removed or modified, so a second call with the
// same pairs adds nothing.
func Reconcile(join *model.JoinSchema, existing *model.Table, pairs []Pair, now time.Time) []*model.Record {
	schema := join.Schema()
	pk, ck := join.Parent.Key, join.Child.Key

	seen := make(map[Pair]struct{}, len(existing.Records)+len(pairs))
	for _, r := range existing.Records {
		seen[Pair{ParentID: r.Get(pk), ChildID: r.Get(ck)}] = struct{}{}
	}

	ts := model.FormatTimestamp(now)
	var added []*model.Record
	for _, p := range pairs {
		if p.ParentID == "" || p.ChildID == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}

		r := model.NewRecord(schema)
		_ = r.Set(schema.PrimaryKey, NewID(schema.IDPrefix))
		_ = r.Set(pk, p.ParentID)
		_ = r.Set(ck, p.ChildID)
		_ = r.Set(model.CreatedAtField, ts)
		_ = r.Set(model.UpdatedAtField, ts)
		added = append(added, r)
	}
	existing.Records = append(existing.Records, added...)
	return added
}

// SplitList splits a comma-separated list, trimming blanks and dropping
// case-insensitive duplicates.
func SplitList(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key := strings.ToLower(part)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, part)
	}
	return out
}

// Slug lowercases s, strips diacritics, and collapses every run of
// non-alphanumerics to a single underscore: "Señor Tools.io" -> "senor_tools_io".
func Slug(s string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			sep = false
			b.WriteRune(r)
			continue
		}
		sep = true
	}
	return b.String()
}
