package catalog

import (
	"os"
	"path"
	"path/filepath"
)

// ImageRefs are the URLs of a bucket's derived images. Missing images are empty.
type ImageRefs struct {
	Front string `json:"front,omitempty"`
	Back  string `json:"back,omitempty"`
}

// Images resolves derived images inside the buckets directory. URLs are
// rooted at URLPrefix (the HTTP server mounts the buckets directory there).
type Images struct {
	Root      string
	URLPrefix string
}

// NewImages creates a resolver serving root under "/buckets".
func NewImages(root string) *Images {
	return &Images{Root: root, URLPrefix: "/buckets"}
}

// Resolve returns the image refs of the bucket with the given prefix.
func (im *Images) Resolve(prefix string) ImageRefs {
	if im == nil || prefix == "" {
		return ImageRefs{}
	}
	return ImageRefs{
		Front: im.url(prefix, "web_front.jpg"),
		Back:  im.url(prefix, "web_back.jpg"),
	}
}

// HasFront reports whether the front image of a bucket exists.
func (im *Images) HasFront(prefix string) bool {
	if im == nil {
		return false
	}
	return im.url(prefix, "web_front.jpg") != ""
}

func (im *Images) url(prefix, name string) string {
	dir := "bkt_" + prefix
	if _, err := os.Stat(filepath.Join(im.Root, dir, "derived", name)); err != nil {
		return ""
	}
	return path.Join(im.URLPrefix, dir, "derived", name)
}
