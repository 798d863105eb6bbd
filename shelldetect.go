package dullahan

import "os"

// DetectShell returns the user's login shell, preferring $SHELL and
// falling back to /bin/sh. Full shell-detection (parsing /etc/passwd,
// probing common shell paths) is named as an external collaborator in
// spec.md §1; this is the minimal functional stand-in.
func DetectShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}
