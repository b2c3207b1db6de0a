// Package notebook syncs a run's items into a NotebookLM notebook.
//
// Client sequences the protocol; Driver performs the browser work behind it.
package notebook

import "context"

// Driver is the browser automation capability the Client drives. Implementations
// address the page by visible content and never by position.
type Driver interface {
	// Launch starts a browser bound to the persistent profile at profileDir.
	// An empty browserPath lets the driver locate a local Chrome.
	Launch(ctx context.Context, profileDir, browserPath string) error
	// OpenHome loads the notebook home page and reports whether the profile is signed in.
	OpenHome(ctx context.Context) (signedIn bool, err error)
	// FindContainer reports whether a notebook whose title equals or starts with name exists.
	FindContainer(ctx context.Context, name string) (bool, error)
	OpenContainer(ctx context.Context, name string) error
	CreateContainer(ctx context.Context, name string) error
	// InsertLink adds a single video link source.
	InsertLink(ctx context.Context, url string) error
	// InsertText adds a pasted-text source.
	InsertText(ctx context.Context, title, content string) error
	// InsertLinks adds several website sources in one dialog.
	InsertLinks(ctx context.Context, urls []string) error
	// RenameSource renames the source whose label contains match.
	RenameSource(ctx context.Context, match, label string) error
	// InputEnabled reports whether the chat input accepts text.
	InputEnabled(ctx context.Context) (bool, error)
	Submit(ctx context.Context, prompt string) error
	CurrentURL(ctx context.Context) (string, error)
	Close() error
}
