package deps

import "os"

const executableSuffix = ".exe"

// accessible approximates a write check by creating and removing a probe file.
func accessible(path string) error {
	f, err := os.CreateTemp(path, ".access-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
