package schemas

import (
	"errors"
	"regexp"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// shortRevisionLength is the number of leading revision characters kept in a
// release tag. Eight characters keep tags readable while making collisions
// across distinct revisions of the same branch practically impossible.
const shortRevisionLength = 8

// ErrInvalidInput is returned when a release cannot be derived from the
// provided branch name or revision identifier.
var ErrInvalidInput = errors.New("invalid input")

// separators matches every character of a branch name which is unsafe in an
// image tag: path separators, whitespace and other docker-reserved characters.
var separators = regexp.MustCompile(`[/\\\s:@#]+`)

// Release is the deployment unit: one build of one branch at one revision.
// Its tag identifies the packaged image both locally and on the remote host.
type Release struct {
	Branch   string // Source branch the release was built from
	Revision string // Full revision identifier (commit hash)
}

// NewRelease builds a Release from a branch name and a revision identifier.
// Both inputs are mandatory; an empty value fails with ErrInvalidInput so the
// pipeline never proceeds to packaging with an unidentifiable release.
func NewRelease(branch, revision string) (r Release, err error) {
	branch = strings.TrimSpace(branch)
	revision = strings.TrimSpace(revision)

	if branch == "" {
		err = pkgerrors.Wrap(ErrInvalidInput, "empty branch name")
		return
	}

	if revision == "" {
		err = pkgerrors.Wrap(ErrInvalidInput, "empty revision identifier")
		return
	}

	r.Branch = branch
	r.Revision = revision

	return
}

// ShortRevision returns the leading characters of the revision identifier
// used within the release tag.
func (r Release) ShortRevision() string {
	if len(r.Revision) <= shortRevisionLength {
		return strings.ToLower(r.Revision)
	}

	return strings.ToLower(r.Revision[:shortRevisionLength])
}

// Tag derives the deterministic release tag: the lowercased branch name with
// separators normalized to hyphens, a hyphen, then the short revision.
// Two runs on the same (branch, revision) pair always produce the same tag.
func (r Release) Tag() string {
	branch := strings.ToLower(r.Branch)
	branch = separators.ReplaceAllString(branch, "-")
	branch = strings.Trim(branch, "-.")

	return branch + "-" + r.ShortRevision()
}

// ImageRef returns the full image reference for the release given the
// configured image name.
func (r Release) ImageRef(imageName string) string {
	return imageName + ":" + r.Tag()
}

// ArchiveName returns the file name under which the serialized image archive
// of this release is stored and transferred.
func (r Release) ArchiveName() string {
	return r.Tag() + ".tar"
}
