// Package mpath implements a repository path: a non-empty, '/'-separated
// sequence of components used as input to the fncache path encoder.
package mpath

import (
	"bytes"
	"fmt"
)

// Path is a non-empty sequence of path components, e.g. "dir/sub/file.txt"
// split into ["dir", "sub", "file.txt"]. Components never contain '/'.
type Path struct {
	components [][]byte
}

// New splits raw on '/' and validates the result. An empty path, a path with an
// empty component (consecutive or leading/trailing slashes), or a path
// containing a NUL byte is rejected.
func New(raw string) (Path, error) {
	if raw == "" {
		return Path{}, fmt.Errorf("invalid path: empty")
	}
	if bytes.IndexByte([]byte(raw), 0) >= 0 {
		return Path{}, fmt.Errorf("invalid path: contains NUL byte: %q", raw)
	}
	parts := bytes.Split([]byte(raw), []byte("/"))
	components := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if len(p) == 0 {
			return Path{}, fmt.Errorf("invalid path: empty component: %q", raw)
		}
		components = append(components, p)
	}
	return Path{components: components}, nil
}

// Components returns the path's components. The basename is the last element.
func (p Path) Components() [][]byte {
	return p.components
}

// Dirs returns every component except the basename.
func (p Path) Dirs() [][]byte {
	if len(p.components) == 0 {
		return nil
	}
	return p.components[:len(p.components)-1]
}

// Basename returns the final component.
func (p Path) Basename() []byte {
	if len(p.components) == 0 {
		return nil
	}
	return p.components[len(p.components)-1]
}

func (p Path) String() string {
	return string(bytes.Join(p.components, []byte("/")))
}
