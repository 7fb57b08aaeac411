// pattern: Functional Core

package discovery

// DiscoveredProject is a git repository found under a configured scan path
// that is not yet tracked as a project. Discovery never mutates Model or
// the global config on its own — it only offers candidates for the `p`
// add-project prompt to pre-fill (§9 Discovery supplement).
type DiscoveredProject struct {
	Name string // directory name, used as the default display name
	Path string // absolute, symlink-resolved path to the repository root
}
