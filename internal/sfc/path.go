// Package sfc reads and writes block files: single-file components made of
// tagged sections (`<json id="metadata">`, `<script id="BlockFunction" lang="ts">`, ...).
package sfc

import (
	"path"
	"strings"
)

const (
	// Ext is the extension of structured block files.
	Ext = "mars"
	// MetadataSectionID is the json section routed to Block.Metadata.
	MetadataSectionID = "metadata"
)

// Path is the identity of a block derived from its file path:
// {Folder}/{Name}.{Kind}.{Ext}. Paths always use forward slashes.
type Path struct {
	Folder   string `json:"folder"`
	Name     string `json:"name"`
	Kind     string `json:"blockTypeName"`
	Ext      string `json:"ext"`
	FilePath string `json:"filePath"`
}

// ParsePath splits a block file path like "Blog/Post.page.mars" into its
// identity. It fails with an InvalidPathError unless the base name carries
// both a block kind and an extension.
func ParsePath(filePath string) (Path, error) {
	dir, base := path.Split(filePath)
	withoutExt, ext := splitExt(base)
	name, kind := splitExt(withoutExt)
	if name == "" || kind == "" || ext == "" {
		return Path{}, &InvalidPathError{Path: filePath}
	}

	return Path{
		Folder:   strings.TrimSuffix(dir, "/"),
		Name:     name,
		Kind:     kind,
		Ext:      ext,
		FilePath: filePath,
	}, nil
}

// String serializes the identity back to a file path. It is the inverse of
// ParsePath for every clean path.
func (p Path) String() string {
	return path.Join(p.Folder, p.BaseName())
}

// BaseName returns "{Name}.{Kind}.{Ext}".
func (p Path) BaseName() string {
	return p.Name + "." + p.Kind + "." + p.Ext
}

// splitExt splits the last extension off base. A leading dot does not start
// an extension, so ".page" has none.
func splitExt(base string) (stem, ext string) {
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return base, ""
	}
	return base[:i], base[i+1:]
}
