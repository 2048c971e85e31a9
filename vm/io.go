package vm

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// osFlags maps an RR file mode string to the os.OpenFile flags the
// canonical implementation's fopen-style modes imply.
func osFlags(mode string) (int, bool) {
	switch mode {
	case "r":
		return os.O_RDONLY, true
	case "w":
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, true
	case "a":
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, true
	case "r+":
		return os.O_RDWR, true
	case "w+":
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC, true
	case "a+":
		return os.O_RDWR | os.O_CREATE | os.O_APPEND, true
	}
	return 0, false
}

// fileOpen implements Opn(name, mode, dir): dir is the compiler-supplied
// including module's directory, prepended when name isn't absolute so
// relative paths resolve against source location rather than the
// process's working directory.
func (m *Machine) fileOpen() error {
	dirV := m.pop()
	modeV := m.pop()
	nameV := m.pop()
	dir, ok := asByteString(dirV)
	m.kill(dirV)
	if !ok {
		m.kill(modeV)
		m.kill(nameV)
		return m.typeErr("String", dirV)
	}
	mode, ok := asByteString(modeV)
	m.kill(modeV)
	if !ok {
		m.kill(nameV)
		return m.typeErr("String", modeV)
	}
	name, ok := asByteString(nameV)
	m.kill(nameV)
	if !ok {
		return m.typeErr("String", nameV)
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, name)
	}
	flags, ok := osFlags(mode)
	if !ok {
		return errors.Errorf("unsupported file mode %q", mode)
	}
	fv := &Value{Tag: TagFile, File: &FileHandle{Path: path, Mode: mode}}
	f, err := os.OpenFile(path, flags, 0644)
	if err == nil {
		fv.File.F = f
	}
	m.pushFresh(fv)
	return nil
}

// fileRead implements Red(file, n): reads up to n bytes into a String.
func (m *Machine) fileRead() error {
	nV := m.pop()
	n, err := m.requireNumber(nV)
	m.kill(nV)
	if err != nil {
		m.kill(m.pop())
		return err
	}
	fV := m.pop()
	if fV.Tag != TagFile {
		m.kill(fV)
		return m.typeErr("File", fV)
	}
	if fV.File.F == nil {
		m.kill(fV)
		return errors.Errorf("file %q is not open", fV.File.Path)
	}
	buf := make([]byte, int(n))
	read, _ := fV.File.F.Read(buf)
	m.kill(fV)
	m.pushFresh(NewString(string(buf[:read])))
	return nil
}

// fileWrite implements Wrt(file, data): writes data's bytes to file and
// returns the count written.
func (m *Machine) fileWrite() error {
	dataV := m.pop()
	fV := m.pop()
	data, ok := asByteString(dataV)
	m.kill(dataV)
	if !ok {
		m.kill(fV)
		return m.typeErr("String", dataV)
	}
	if fV.Tag != TagFile {
		m.kill(fV)
		return m.typeErr("File", fV)
	}
	if fV.File.F == nil {
		m.kill(fV)
		return errors.Errorf("file %q is not open", fV.File.Path)
	}
	n, err := fV.File.F.WriteString(data)
	m.kill(fV)
	if err != nil {
		return err
	}
	m.pushFresh(NewNumber(float64(n)))
	return nil
}
