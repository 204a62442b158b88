package matrix

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/phylosim/phylosim/sim"
)

//go:embed tables
var builtinTables embed.FS

// loadTables reads every <alphabet>/<name>.dat file under root in fsys as a PAML table.
func loadTables(fsys fs.FS, root string) ([]*Exchangeabilities, error) {
	var tables []*Exchangeabilities
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".dat" {
			return nil
		}
		alphabet, err := sim.ParseAlphabet(path.Base(path.Dir(p)))
		if err != nil {
			return fmt.Errorf("table %s: %w", p, err)
		}
		f, err := fsys.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		name := strings.TrimSuffix(path.Base(p), ".dat")
		t, err := ReadPAML(f, name, alphabet, nil)
		if err != nil {
			return err
		}
		tables = append(tables, t)
		return nil
	})
	return tables, err
}

func registerBuiltinTables() {
	tables, err := loadTables(builtinTables, "tables")
	if err != nil {
		panic(err)
	}
	for _, t := range tables {
		MustRegister(t)
		logrus.Debugf("registered built-in %s table %q", t.Alphabet, t.Name)
	}
}
