package language

import "os/exec"

// MissingBinaries returns the toolchain executables of s that cannot be
// found on PATH. An empty result means the language can run on this host.
func (s Spec) MissingBinaries() []string {
	var missing []string
	for _, bin := range s.Binaries() {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	return missing
}
