package testutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
)

// CleanDir removes everything in the directory named by dirname except for
// any directory entries named by keeps. A missing directory is not an error.
func CleanDir(dirname string, keeps []string) error {
	fis, err := ioutil.ReadDir(dirname)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}

	m := map[string]struct{}{}
	for _, keep := range keeps {
		m[keep] = struct{}{}
	}

	for _, fi := range fis {
		if _, ok := m[fi.Name()]; ok {
			continue
		}
		err = os.RemoveAll(filepath.Join(dirname, fi.Name()))
		if err != nil {
			return err
		}
	}
	return nil
}
