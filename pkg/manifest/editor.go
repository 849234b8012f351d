// Package manifest rewrites Cargo manifest documents in place.
//
// The rewriter is a single forward line scan, not a TOML parser: it
// classifies each line against a fixed set of shapes (table headers, name and
// version assignments, single-line dependency declarations) and rewrites only
// the targeted fields. Everything else, including whitespace, quoting style,
// trailing comments and line endings, passes through byte for byte.
//
// Two edit passes are provided: [ChangeVersions] applies a version map and
// [RenamePackages] applies a name map. Both return the document text with the
// original line-ending style.
package manifest

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/crateherd/crateherd/pkg/errors"
)

// WorkspacePackage is the pseudo package name addressing the
// [workspace.package] table of a workspace root manifest.
const WorkspacePackage = "<workspace>"

const (
	crlf = "\r\n"
	lf   = "\n"
)

// Line-shape patterns, compiled once at init and treated as immutable
// read-only state.
var (
	reName    = regexp.MustCompile(`^(\s*['"]?name['"]?\s*=\s*['"])([0-9A-Za-z_-]+)(['"].*)$`)
	reVersion = regexp.MustCompile(`^(\s*['"]?version['"]?\s*=\s*['"])([^'"]+)(['"].*)$`)
	rePackage = regexp.MustCompile(`^(\s*['"]?package['"]?\s*=\s*['"])([0-9A-Za-z_-]+)(['"].*)$`)

	rePackageTable  = regexp.MustCompile(`^\[(workspace\.)?package]`)
	reDepTable      = regexp.MustCompile(`^\[(target\.'?([^']+)'?\.|workspace\.)?dependencies]`)
	reDepEntry      = regexp.MustCompile(`^\[(?:workspace\.)?dependencies\.([0-9A-Za-z_-]+)]`)
	reBuildDepTable = regexp.MustCompile(`^\[(target\.'?([^']+)'?\.)?build-dependencies]`)
	reBuildDepEntry = regexp.MustCompile(`^\[build-dependencies\.([0-9A-Za-z_-]+)]`)
	reDevDepTable   = regexp.MustCompile(`^\[(target\.'?([^']+)'?\.)?dev-dependencies]`)
	reDevDepEntry   = regexp.MustCompile(`^\[dev-dependencies\.([0-9A-Za-z_-]+)]`)

	reDepDirectVersion = regexp.MustCompile(
		`^(\s*['"]?([0-9A-Za-z_-]+)['"]?\s*=\s*['"])([^'"]+)(['"].*)$`)
	reDepDirectInherited = regexp.MustCompile(
		`^\s*['"]?([0-9A-Za-z_-]+)['"]?\s*\.\s*['"]?workspace['"]?\s*=\s*true\s*.*$`)
	reDepObjVersion = regexp.MustCompile(
		`^(\s*['"]?([0-9A-Za-z_-]+)['"]?\s*=\s*\{.*['"]?version['"]?\s*=\s*['"])([^'"]+)(['"].*}.*)$`)
	reDepObjInherited = regexp.MustCompile(
		`^\s*['"]?([0-9A-Za-z_-]+)['"]?\s*=\s*\{.*['"]?workspace['"]?\s*=\s*true\s*.*}.*$`)
	reDepObjRenameVersion = regexp.MustCompile(
		`^(\s*['"]?([0-9A-Za-z_-]+)['"]?\s*=\s*\{.*['"]?version['"]?\s*=\s*['"])([^'"]+)(['"].*['"]?package['"]?\s*=\s*['"]([0-9A-Za-z_-]+)['"].*}.*)$`)
	reDepObjRenameBeforeVersion = regexp.MustCompile(
		`^(\s*['"]?[0-9A-Za-z_-]+['"]?\s*=\s*\{.*['"]?package['"]?\s*=\s*['"]([0-9A-Za-z_-]+)['"].*['"]?version['"]?\s*=\s*['"])([^'"]+)(['"].*}.*)$`)
	reDepDirectName = regexp.MustCompile(
		`^(\s*['"]?([0-9A-Za-z_-]+)['"]?\s*=\s*)(['"][^'"]+['"])(.*)$`)
	reDepObjName = regexp.MustCompile(
		`^(\s*['"]?([0-9A-Za-z_-]+)['"]?\s*=\s*\{(.*\S)?)(\s*}.*)$`)
	reDepObjRenameName = regexp.MustCompile(
		`^(\s*['"]?[0-9A-Za-z_-]+['"]?\s*=\s*\{.*['"]?package['"]?\s*=\s*['"])([0-9A-Za-z_-]+)(['"].*}.*)$`)
	reWorkspaceKey = regexp.MustCompile(`['"]?workspace['"]?\s*=\s*true`)
)

// scan context variants.
type contextKind int

const (
	ctxBeginning contextKind = iota
	ctxPackage
	ctxDependencies
	ctxDependencyEntry
	ctxDontCare
)

// lineRef remembers where a dependency sub-table recorded its version or
// package line so the finalization step can overwrite it.
type lineRef struct {
	idx  int
	text string
}

// entryState accumulates a dependency sub-table while its lines stream past.
type entryState struct {
	dep      string
	meta     *lineRef
	inherits bool
}

// entryResult is what the per-line callback reports for sub-table lines.
type entryResult struct {
	inherits bool
	newDep   string
	record   bool
}

// parse drives the line-scanning state machine. The callbacks may append a
// replacement line to out; when they leave out untouched, the original line
// passes through unchanged. flushFn runs once per dependency sub-table, at
// the next table header or end of input.
func parse(
	doc string,
	devDeps bool,
	packageFn func(line string, out *[]string) error,
	depsFn func(line string, out *[]string) error,
	entryFn func(line string) entryResult,
	flushFn func(dep string, meta *lineRef, out *[]string, inherits bool) error,
) (string, error) {
	lines := splitLines(doc)
	newLines := make([]string, 0, len(lines))

	context := ctxBeginning
	var entry entryState

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "[") && context == ctxDependencyEntry {
			if err := flushFn(entry.dep, entry.meta, &newLines, entry.inherits); err != nil {
				return "", err
			}
			entry = entryState{}
		}

		count := len(newLines)

		switch {
		case rePackageTable.MatchString(trimmed):
			context = ctxPackage
		case reDepTable.MatchString(trimmed), reBuildDepTable.MatchString(trimmed):
			context = ctxDependencies
		case reDevDepTable.MatchString(trimmed):
			if devDeps {
				context = ctxDependencies
			} else {
				context = ctxDontCare
			}
		case reDepEntry.MatchString(trimmed):
			context = ctxDependencyEntry
			entry = entryState{dep: reDepEntry.FindStringSubmatch(trimmed)[1]}
		case reBuildDepEntry.MatchString(trimmed):
			context = ctxDependencyEntry
			entry = entryState{dep: reBuildDepEntry.FindStringSubmatch(trimmed)[1]}
		case reDevDepEntry.MatchString(trimmed):
			if devDeps {
				context = ctxDependencyEntry
				entry = entryState{dep: reDevDepEntry.FindStringSubmatch(trimmed)[1]}
			} else {
				context = ctxDontCare
			}
		case strings.HasPrefix(trimmed, "["):
			context = ctxDontCare
		default:
			switch context {
			case ctxPackage:
				if err := packageFn(line, &newLines); err != nil {
					return "", err
				}
			case ctxDependencies:
				if err := depsFn(line, &newLines); err != nil {
					return "", err
				}
			case ctxDependencyEntry:
				res := entryFn(line)
				entry.inherits = entry.inherits || res.inherits
				if res.newDep != "" {
					entry.dep = res.newDep
				}
				if res.record {
					entry.meta = &lineRef{idx: len(newLines), text: line}
				}
			}
		}

		if len(newLines) == count {
			newLines = append(newLines, line)
		}
	}

	if context == ctxDependencyEntry {
		if err := flushFn(entry.dep, entry.meta, &newLines, entry.inherits); err != nil {
			return "", err
		}
	}

	eol := lf
	if strings.Contains(doc, crlf) {
		eol = crlf
	}
	return strings.Join(newLines, eol), nil
}

// splitLines mirrors a plain lines() iteration: the trailing newline does not
// produce an empty final element, and CR is stripped so CRLF inputs classify
// the same as LF inputs.
func splitLines(doc string) []string {
	lines := strings.Split(doc, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// ChangeVersions rewrites the version of the named package and of every
// dependency declaration whose target appears in versions. Dependency
// requirements that still match the new version are left alone unless exact
// pins them to "=version", or autoInject rewrites unconstrained ("*",
// ">=0.0.0") requirements to the concrete new version.
//
// Entries marked workspace = true are never edited; their names are returned
// in the inherited set so the caller can patch the workspace-level source.
func ChangeVersions(doc, pkgName string, versions map[string]*semver.Version, exact, autoInject bool) (string, map[string]struct{}, error) {
	inherited := make(map[string]struct{})

	editVersion := func(caps []string, nameIdx int, out *[]string) error {
		newVersion, ok := versions[caps[nameIdx]]
		if !ok {
			return nil
		}
		if exact {
			*out = append(*out, caps[1]+"="+newVersion.String()+caps[4])
			return nil
		}
		matches, err := MatchesReq(caps[3], newVersion)
		if err != nil {
			return err
		}
		if !matches || (autoInject && IsUnversionedReq(caps[3])) {
			*out = append(*out, caps[1]+newVersion.String()+caps[4])
		}
		return nil
	}

	out, err := parse(
		doc,
		false,
		func(line string, out *[]string) error {
			newVersion, ok := versions[pkgName]
			if !ok {
				return nil
			}
			if caps := reVersion.FindStringSubmatch(line); caps != nil {
				*out = append(*out, caps[1]+newVersion.String()+caps[3])
			}
			return nil
		},
		func(line string, out *[]string) error {
			switch {
			case reDepDirectInherited.MatchString(line):
				inherited[reDepDirectInherited.FindStringSubmatch(line)[1]] = struct{}{}
			case reDepObjInherited.MatchString(line):
				inherited[reDepObjInherited.FindStringSubmatch(line)[1]] = struct{}{}
			case reDepDirectVersion.MatchString(line):
				return editVersion(reDepDirectVersion.FindStringSubmatch(line), 2, out)
			case reDepObjRenameVersion.MatchString(line):
				return editVersion(reDepObjRenameVersion.FindStringSubmatch(line), 5, out)
			case reDepObjRenameBeforeVersion.MatchString(line):
				return editVersion(reDepObjRenameBeforeVersion.FindStringSubmatch(line), 2, out)
			case reDepObjVersion.MatchString(line):
				return editVersion(reDepObjVersion.FindStringSubmatch(line), 2, out)
			case reDepObjName.MatchString(line):
				caps := reDepObjName.FindStringSubmatch(line)
				if newVersion, ok := versions[caps[2]]; ok {
					if exact {
						*out = append(*out, caps[1]+`, version = "=`+newVersion.String()+`"`+caps[4])
					} else {
						*out = append(*out, caps[1]+`, version = "`+newVersion.String()+`"`+caps[4])
					}
				}
			}
			return nil
		},
		func(line string) entryResult {
			switch {
			case reWorkspaceKey.MatchString(line):
				return entryResult{inherits: true}
			case rePackage.MatchString(line):
				return entryResult{newDep: rePackage.FindStringSubmatch(line)[2]}
			case reVersion.MatchString(line):
				return entryResult{record: true}
			}
			return entryResult{}
		},
		func(dep string, meta *lineRef, out *[]string, inherits bool) error {
			if inherits {
				inherited[dep] = struct{}{}
				return nil
			}
			newVersion, ok := versions[dep]
			if !ok {
				return nil
			}
			if meta != nil {
				caps := reVersion.FindStringSubmatch(meta.text)
				if caps == nil {
					return nil
				}
				if exact {
					(*out)[meta.idx] = caps[1] + "=" + newVersion.String() + caps[3]
					return nil
				}
				matches, err := MatchesReq(caps[2], newVersion)
				if err != nil {
					return err
				}
				if !matches || (autoInject && IsUnversionedReq(caps[2])) {
					(*out)[meta.idx] = caps[1] + newVersion.String() + caps[3]
				}
				return nil
			}
			*out = append(*out, `version = "`+newVersion.String()+`"`)
			return nil
		},
	)
	if err != nil {
		return "", nil, err
	}
	return out, inherited, nil
}

// RenamePackages rewrites the package name and every dependency declaration
// whose target appears in renames. A bare string dependency is exploded into
// an inline table so the original requirement survives next to the new
// package field. Dev-dependency tables are rewritten too.
func RenamePackages(doc, pkgName string, renames map[string]string) (string, error) {
	return parse(
		doc,
		true,
		func(line string, out *[]string) error {
			newName, ok := renames[pkgName]
			if !ok {
				return nil
			}
			if caps := reName.FindStringSubmatch(line); caps != nil {
				*out = append(*out, caps[1]+newName+caps[3])
			}
			return nil
		},
		func(line string, out *[]string) error {
			switch {
			case reDepDirectName.MatchString(line):
				caps := reDepDirectName.FindStringSubmatch(line)
				if newName, ok := renames[caps[2]]; ok {
					*out = append(*out, caps[1]+`{ version = `+caps[3]+`, package = "`+newName+`" }`+caps[4])
				}
			case reDepObjRenameName.MatchString(line):
				caps := reDepObjRenameName.FindStringSubmatch(line)
				if newName, ok := renames[caps[2]]; ok {
					*out = append(*out, caps[1]+newName+caps[3])
				}
			case reDepObjName.MatchString(line):
				caps := reDepObjName.FindStringSubmatch(line)
				if newName, ok := renames[caps[2]]; ok {
					if !reWorkspaceKey.MatchString(caps[3]) {
						*out = append(*out, caps[1]+`, package = "`+newName+`"`+caps[4])
					}
				}
			}
			return nil
		},
		func(line string) entryResult {
			if rePackage.MatchString(line) {
				return entryResult{record: true}
			}
			return entryResult{}
		},
		func(dep string, meta *lineRef, out *[]string, inherits bool) error {
			if meta != nil {
				caps := rePackage.FindStringSubmatch(meta.text)
				if caps == nil {
					return nil
				}
				if newName, ok := renames[caps[2]]; ok {
					(*out)[meta.idx] = caps[1] + newName + caps[3]
				}
				return nil
			}
			if newName, ok := renames[dep]; ok {
				*out = append(*out, `package = "`+newName+`"`)
			}
			return nil
		},
	)
}

// MatchesReq reports whether a Cargo version requirement accepts the given
// version. Bare requirements ("1.2.3") are caret ranges, per the Cargo
// resolver.
func MatchesReq(req string, v *semver.Version) (bool, error) {
	c, err := parseReq(req)
	if err != nil {
		return false, err
	}
	return c.Check(v), nil
}

// IsUnversionedReq reports whether the requirement accepts any version at
// all ("*" or ">=0.0.0").
func IsUnversionedReq(req string) bool {
	switch strings.ReplaceAll(strings.TrimSpace(req), " ", "") {
	case "*", ">=0.0.0":
		return true
	}
	return false
}

func parseReq(req string) (*semver.Constraints, error) {
	req = strings.TrimSpace(req)
	if req == "" || req == "*" {
		return semver.NewConstraint("*")
	}

	// Cargo treats a bare version as a caret requirement.
	parts := strings.Split(req, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && p[0] >= '0' && p[0] <= '9' {
			p = "^" + p
		}
		parts[i] = p
	}

	c, err := semver.NewConstraint(strings.Join(parts, ", "))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBadManifest, err, "version requirement %q", req)
	}
	return c, nil
}
