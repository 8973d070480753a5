package gateway

import (
	"strings"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
)

// namespacePrefixes are stripped, longest first, when deriving a
// namespace or a default name from a repo/package name.
var namespacePrefixes = []string{"mcp-server-", "server-", "mcp-"}

// ParseSource implements the register_backend source string grammar:
// "http://"/"https://" is an HTTP source, "github:<owner>/<repo>[/<subpath>]"
// is a GitHub source, and anything else is a package name.
func ParseSource(raw string) (BackendSource, error) {
	switch {
	case strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://"):
		return BackendSource{Kind: SourceHTTP, URL: raw}, nil
	case strings.HasPrefix(raw, "github:"):
		return parseGitHubSource(raw)
	default:
		if raw == "" {
			return BackendSource{}, ferrors.NewInvalidConfigurationError("empty backend source", nil)
		}
		return BackendSource{
			Kind:    SourcePackage,
			Package: raw,
			Process: defaultProcessConfig(raw),
		}, nil
	}
}

func parseGitHubSource(raw string) (BackendSource, error) {
	rest := strings.TrimPrefix(raw, "github:")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return BackendSource{}, ferrors.NewInvalidConfigurationError(
			"github source must be github:<owner>/<repo>[/<subpath>], got: "+raw, nil)
	}
	owner, repo := parts[0], parts[1]
	subpath := ""
	if len(parts) == 3 {
		subpath = parts[2]
	}
	pkg := owner + "/" + repo
	return BackendSource{
		Kind:    SourceGitHub,
		Owner:   owner,
		Repo:    repo,
		Subpath: subpath,
		Package: pkg,
		Process: defaultProcessConfig(pkg),
	}, nil
}

// defaultProcessConfig returns the uvx-backed default process command for
// a github/package source, mirroring register_backend.py's
// ProcessConfig(command="uvx", args=(package_name,)). The desired-state
// grammar has no field to override this: it is the only process command
// a package/github source ever gets.
func defaultProcessConfig(pkg string) *ProcessConfig {
	return &ProcessConfig{Command: "uvx", Args: []string{pkg}}
}

// DeriveNamespace computes the default namespace for a source when the
// caller did not supply one explicitly. HTTP sources have no naturally
// derivable namespace and must be registered with one.
func DeriveNamespace(src BackendSource) (string, error) {
	switch src.Kind {
	case SourceGitHub:
		return stripNamespacePrefixes(strings.ToLower(src.Repo)), nil
	case SourcePackage:
		segment := src.Package
		if i := strings.LastIndex(segment, "/"); i >= 0 {
			segment = segment[i+1:]
		}
		return stripNamespacePrefixes(strings.ToLower(segment)), nil
	default:
		return "", ferrors.NewInvalidConfigurationError(
			"http sources require an explicit namespace", nil)
	}
}

// DeriveName computes the default registry name for a source when the
// caller did not supply one explicitly. Unlike DeriveNamespace this
// keeps the original casing and does not strip known prefixes: spec
// scenario 4 derives name "mcp-server-reports" (the repo as-is) and
// namespace "reports" (prefix-stripped) from the same source.
func DeriveName(src BackendSource) (string, error) {
	switch src.Kind {
	case SourceGitHub:
		return src.Repo, nil
	case SourcePackage:
		segment := src.Package
		if i := strings.LastIndex(segment, "/"); i >= 0 {
			segment = segment[i+1:]
		}
		return segment, nil
	default:
		return "", ferrors.NewInvalidConfigurationError(
			"http sources require an explicit name", nil)
	}
}

func stripNamespacePrefixes(s string) string {
	for _, prefix := range namespacePrefixes {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimPrefix(s, prefix)
		}
	}
	return s
}

// NamespacedToolName returns the proxied tool/prompt name for a backend
// under namespacing.
func NamespacedToolName(namespace, name string) string {
	return namespace + "." + name
}

// NamespacedResourceURI returns the proxied resource URI for a backend
// under namespacing. This is plain string concatenation, including when
// uri already carries its own scheme — see DESIGN.md for why this is
// not special-cased.
func NamespacedResourceURI(namespace, uri string) string {
	return namespace + "://" + uri
}
