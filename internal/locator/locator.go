// Package locator implements the bounded-depth filesystem walker that maps
// service names — including nested prefixes — to sockets across a
// workspace.
package locator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/bbatchelder/tap/internal/validate"
)

// walkLimiter caps the rate of directory reads during a walk so a very wide
// (but acyclic) workspace tree cannot spin the walk hot. The burst is large
// enough that ordinary workspaces never observe any delay.
var walkLimiter = rate.NewLimiter(rate.Limit(2000), 200)

const (
	DefaultMaxDepth = 5
	tapDirName      = ".tap"
	socketSuffix    = ".sock"
)

// Service is a discovered name-to-socket mapping.
type Service struct {
	Name       string // composed name: base_name, or prefix:base_name
	SocketPath string // absolute path
	TapDir     string // absolute path of the owning .tap directory
	Prefix     string // base-relative path of the .tap dir's parent ("" at root)
	BaseName   string
}

// tapDir is one discovered ".tap" directory.
type tapDir struct {
	path   string // absolute
	prefix string // base-relative path of the parent, "" at root
}

// walk recursively scans baseDir to maxDepth, recording every directory
// named ".tap". Filesystem errors are swallowed per-directory; discovery is
// best-effort.
func walk(baseDir string, maxDepth int) []tapDir {
	var found []tapDir
	var recurse func(dir, relPrefix string, depth int)
	recurse = func(dir, relPrefix string, depth int) {
		if depth > maxDepth {
			return
		}
		walkLimiter.Wait(context.Background())
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			name := e.Name()
			if name == tapDirName {
				found = append(found, tapDir{path: filepath.Join(dir, name), prefix: relPrefix})
				continue
			}
			if name == "node_modules" || strings.HasPrefix(name, ".") {
				continue
			}
			childPrefix := name
			if relPrefix != "" {
				childPrefix = relPrefix + "/" + name
			}
			recurse(filepath.Join(dir, name), childPrefix, depth+1)
		}
	}
	recurse(baseDir, "", 0)
	return found
}

// Enumerate lists every service discoverable from baseDir within maxDepth.
// A maxDepth of 0 uses DefaultMaxDepth.
func Enumerate(baseDir string, maxDepth int) []Service {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	var services []Service
	for _, td := range walk(baseDir, maxDepth) {
		walkLimiter.Wait(context.Background())
		entries, err := os.ReadDir(td.path)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), socketSuffix) {
				continue
			}
			base := strings.TrimSuffix(e.Name(), socketSuffix)
			name := base
			if td.prefix != "" {
				name = td.prefix + ":" + base
			}
			services = append(services, Service{
				Name:       name,
				SocketPath: filepath.Join(td.path, e.Name()),
				TapDir:     td.path,
				Prefix:     td.prefix,
				BaseName:   base,
			})
		}
	}
	return services
}

// Resolve maps a user-supplied name to a socket path. If tapDir is
// non-empty, it is used directly (no discovery walk) with base_name taken
// from the text after the last ":", or the whole name if none. Otherwise a
// discovery walk runs: an exact composed-name match wins; failing that, if
// name contains no ":" and exactly one discovered service has that base
// name, it wins. If nothing matches, the expected default path is returned
// so the caller can surface a helpful "no runner" message using it.
func Resolve(baseDir, name, tapDir string, maxDepth int) (Service, error) {
	if err := validate.ServiceName(name); err != nil {
		return Service{}, err
	}

	if tapDir != "" {
		_, base := validate.SplitName(name)
		return Service{
			Name:       name,
			SocketPath: filepath.Join(tapDir, base+socketSuffix),
			TapDir:     tapDir,
			BaseName:   base,
		}, nil
	}

	services := Enumerate(baseDir, maxDepth)
	for _, s := range services {
		if s.Name == name {
			return s, nil
		}
	}

	if !strings.Contains(name, ":") {
		var match *Service
		count := 0
		for i := range services {
			if services[i].BaseName == name {
				count++
				match = &services[i]
			}
		}
		if count == 1 {
			return *match, nil
		}
	}

	prefix, base := validate.SplitName(name)
	defaultTapDir := filepath.Join(baseDir, filepath.FromSlash(prefix), tapDirName)
	return Service{
		Name:       name,
		SocketPath: filepath.Join(defaultTapDir, base+socketSuffix),
		TapDir:     defaultTapDir,
		Prefix:     prefix,
		BaseName:   base,
	}, fmt.Errorf("no runner found for %q", name)
}
