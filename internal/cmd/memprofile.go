package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/dotcommander/yar/internal/errs"
)

// memprofile is a hidden flag for local debugging.
var memprofile bool

var profileNames = []string{"heap", "allocs"}

// maybeWriteMemProfile dumps heap and alloc profiles into dir when
// --memprofile was given. An empty dir means the working directory.
func maybeWriteMemProfile(dir string) {
	if !memprofile {
		return
	}
	if err := writeMemProfiles(dir); err != nil {
		handleError(os.Stderr, errs.Wrap(err, "Could not write memory profiles."))
	}
}

func writeMemProfiles(dir string) error {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	var errList []error
	for _, name := range profileNames {
		errList = append(errList, writeProfile(filepath.Join(dir, "yar_"+name+".profile"), name))
	}
	return errors.Join(errList...)
}

func writeProfile(path, name string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return pprof.Lookup(name).WriteTo(f, 0)
}
