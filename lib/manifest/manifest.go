// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/steward/lib/snapshot"
)

// Filename is the manifest's name inside the desired tree.
const Filename = "steward.yaml"

// Rule pins metadata and hooks for the paths its pattern matches.
// Owner, Group, and Mode are optional; an empty field leaves the
// scanned value in place. Mode is an octal string and may carry the
// setuid, setgid, and sticky bits ("4755").
type Rule struct {
	Path     string   `yaml:"path"`
	Owner    string   `yaml:"owner,omitempty"`
	Group    string   `yaml:"group,omitempty"`
	Mode     string   `yaml:"mode,omitempty"`
	Validate []string `yaml:"validate,omitempty"`
	OnChange []string `yaml:"on_change,omitempty"`

	// Resolved at load time.
	uid     uint32
	gid     uint32
	mode    fs.FileMode
	hasUID  bool
	hasGID  bool
	hasMode bool
}

// Matches reports whether the rule's pattern matches an io/fs-relative
// path. A pattern ending in "/**" matches the named directory and its
// whole subtree; anything else follows path.Match.
func (r *Rule) Matches(p string) bool {
	if base, ok := strings.CutSuffix(r.Path, "/**"); ok {
		return p == base || strings.HasPrefix(p, base+"/")
	}
	matched, err := path.Match(r.Path, p)
	return err == nil && matched
}

// literal reports whether the pattern names exactly one path, with no
// glob metacharacters. Only literal rules participate in the duplicate
// check: overlapping globs are layering, identical literals with
// conflicting metadata are a mistake.
func (r *Rule) literal() bool {
	return !strings.ContainsAny(r.Path, `*?[\`)
}

// Manifest is the parsed steward.yaml: an ordered rule list. Order is
// meaningful — later rules override earlier ones attribute by
// attribute.
type Manifest struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads and compiles the manifest inside desiredRoot. A missing
// manifest file is not an error: most trees carry no metadata rules
// and get an empty manifest.
func Load(desiredRoot string) (*Manifest, error) {
	name := filepath.Join(desiredRoot, Filename)
	data, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", name, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", name, err)
	}
	if err := m.compile(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", name, err)
	}
	return &m, nil
}

// compile validates every rule and resolves names to numbers. All
// problems are reported together so a bad manifest surfaces in one
// pass.
func (m *Manifest) compile() error {
	var errs []error

	for i := range m.Rules {
		rule := &m.Rules[i]
		label := fmt.Sprintf("rule %d (%s)", i+1, rule.Path)

		switch {
		case rule.Path == "":
			errs = append(errs, fmt.Errorf("rule %d: path is empty", i+1))
			continue
		case strings.HasPrefix(rule.Path, "/"):
			errs = append(errs, fmt.Errorf("%s: pattern must be relative to the tree root", label))
			continue
		}
		pattern := strings.TrimSuffix(rule.Path, "/**")
		if _, err := path.Match(pattern, "probe"); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
			continue
		}

		if rule.Mode != "" {
			mode, err := parseMode(rule.Mode)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: mode %q: %w", label, rule.Mode, err))
			} else {
				rule.mode = mode
				rule.hasMode = true
			}
		}
		if rule.Owner != "" {
			uid, err := resolveUser(rule.Owner)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: owner %q: %w", label, rule.Owner, err))
			} else {
				rule.uid = uid
				rule.hasUID = true
			}
		}
		if rule.Group != "" {
			gid, err := resolveGroup(rule.Group)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: group %q: %w", label, rule.Group, err))
			} else {
				rule.gid = gid
				rule.hasGID = true
			}
		}
	}

	errs = append(errs, m.checkDuplicates()...)
	return errors.Join(errs...)
}

// checkDuplicates flags pairs of rules that pin the same literal path
// to different values for the same attribute. Such a manifest has no
// sensible reading: the author wrote two answers for one question.
func (m *Manifest) checkDuplicates() []error {
	var errs []error
	seen := make(map[string]int)
	for i := range m.Rules {
		rule := &m.Rules[i]
		if !rule.literal() || rule.Path == "" {
			continue
		}
		j, dup := seen[rule.Path]
		if !dup {
			seen[rule.Path] = i
			continue
		}
		if conflicts(&m.Rules[j], rule) {
			errs = append(errs, fmt.Errorf(
				"rules %d and %d both pin %s with conflicting metadata", j+1, i+1, rule.Path))
		}
		seen[rule.Path] = i
	}
	return errs
}

func conflicts(a, b *Rule) bool {
	if a.hasUID && b.hasUID && a.uid != b.uid {
		return true
	}
	if a.hasGID && b.hasGID && a.gid != b.gid {
		return true
	}
	if a.hasMode && b.hasMode && a.mode != b.mode {
		return true
	}
	return false
}

// Apply overlays the manifest onto a scanned desired snapshot, before
// the snapshot is indexed. For every entry, each of owner, group, and
// mode independently takes the value of the last matching rule that
// sets it. Mode never applies to symlinks, and the tree root keeps its
// scanned metadata: the root anchors the tree, it is not managed.
func (m *Manifest) Apply(snap *snapshot.Snapshot) {
	if len(m.Rules) == 0 {
		return
	}
	for i := range snap.Entries {
		entry := &snap.Entries[i]
		if entry.Path == "." {
			continue
		}
		for j := range m.Rules {
			rule := &m.Rules[j]
			if !rule.Matches(entry.Path) {
				continue
			}
			if rule.hasUID {
				entry.UID = rule.uid
			}
			if rule.hasGID {
				entry.GID = rule.gid
			}
			if rule.hasMode && entry.Kind != snapshot.KindSymlink {
				entry.Mode = rule.mode
			}
		}
	}
}

// Matching returns the rules whose patterns match path, in manifest
// order. The apply driver uses this to pair changed paths with the
// validation and change hooks that cover them.
func (m *Manifest) Matching(path string) []*Rule {
	var rules []*Rule
	for i := range m.Rules {
		if m.Rules[i].Matches(path) {
			rules = append(rules, &m.Rules[i])
		}
	}
	return rules
}

// parseMode parses an octal mode string into the managed fs.FileMode
// bits. os and io/fs keep setuid, setgid, and sticky in high type
// bits, not where POSIX puts them, so the numeric form is translated.
func parseMode(s string) (fs.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, errors.New("not an octal mode")
	}
	if v&^uint64(0o7777) != 0 {
		return 0, fmt.Errorf("%#o has bits outside 07777", v)
	}
	mode := fs.FileMode(v & 0o777)
	if v&0o4000 != 0 {
		mode |= fs.ModeSetuid
	}
	if v&0o2000 != 0 {
		mode |= fs.ModeSetgid
	}
	if v&0o1000 != 0 {
		mode |= fs.ModeSticky
	}
	return mode, nil
}

func resolveUser(name string) (uint32, error) {
	if id, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(id), nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("non-numeric uid %q for user %s", u.Uid, name)
	}
	return uint32(id), nil
}

func resolveGroup(name string) (uint32, error) {
	if id, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(id), nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("non-numeric gid %q for group %s", g.Gid, name)
	}
	return uint32(id), nil
}
