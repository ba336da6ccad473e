//go:build !windows

package fileutil

// restrictToCurrentUser is a no-op on Unix, where the mode bits passed to
// the os calls already restrict access.
func restrictToCurrentUser(string) error {
	return nil
}
