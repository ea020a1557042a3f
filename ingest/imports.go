package ingest

import (
	"strings"
)

// Imports groups the two independent ingestion queues.
type Imports struct {
	Files *Queue[string]
	Links *Queue[Link]

	scheme string
}

// NewImports returns empty queues. scheme is the deep-link URL scheme used by
// AddArg to tell links from file paths, for example "bmodloader".
func NewImports(scheme string) *Imports {
	return &Imports{
		Files:  NewQueue[string](),
		Links:  NewQueue[Link](),
		scheme: scheme,
	}
}

// AddFile queues a local path.
func (i *Imports) AddFile(path string) {
	i.Files.Enqueue(path)
}

// AddURL parses raw and queues it. Malformed links are not queued.
func (i *Imports) AddURL(raw string) error {
	link, err := ParseLink(raw)
	if err != nil {
		return err
	}
	i.Links.Enqueue(link)
	return nil
}

// AddArg queues a command-line argument, routing deep links by scheme.
func (i *Imports) AddArg(arg string) error {
	if i.IsLink(arg) {
		return i.AddURL(arg)
	}
	i.AddFile(arg)
	return nil
}

// IsLink reports whether arg uses the deep-link scheme.
func (i *Imports) IsLink(arg string) bool {
	if i.scheme == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(arg), strings.ToLower(i.scheme)+":")
}
