package actionpipe

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// NewFileDumper stores dead-lettered batches as files under basePath. Each
// file holds the insert statement followed by the gob-encoded rows. The fail
// callbacks may be nil.
func NewFileDumper(basePath string,
	failSaveFunc func(query string, rows [][]interface{}, err error),
	failOpenFunc func(err error)) (Dumper, error) {
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		err := os.MkdirAll(basePath, 0755)
		if err != nil {
			return nil, err
		}
	}
	if failSaveFunc == nil {
		failSaveFunc = func(_ string, _ [][]interface{}, _ error) {
			// Nothing
		}
	}
	if failOpenFunc == nil {
		failOpenFunc = func(_ error) {
			// Nothing
		}
	}
	return &FileDumper{
		basePath:     basePath,
		failSaveFunc: failSaveFunc,
		failOpenFunc: failOpenFunc,
	}, nil
}

type FileDumper struct {
	basePath     string
	failSaveFunc func(query string, rows [][]interface{}, err error)
	failOpenFunc func(err error)
}

func (d *FileDumper) Dump(query string, rows [][]interface{}) {
	f, err := os.CreateTemp(d.basePath, "dump")
	if err != nil {
		d.failSaveFunc(query, rows, err)
		return
	}
	ret, err := f.Seek(8, io.SeekStart)
	if err != nil {
		d.failSaveFunc(query, rows, err)
		return
	}
	n, err := io.Copy(f, strings.NewReader(query))
	if err != nil {
		d.failSaveFunc(query, rows, err)
		return
	}
	_, err = f.Seek(0, io.SeekStart)
	if err != nil {
		d.failSaveFunc(query, rows, err)
		return
	}
	err = binary.Write(f, binary.BigEndian, n)
	if err != nil {
		d.failSaveFunc(query, rows, err)
		return
	}
	_, err = f.Seek(ret+n, io.SeekStart)
	if err != nil {
		d.failSaveFunc(query, rows, err)
		return
	}
	err = gob.NewEncoder(f).Encode(&rows)
	if err != nil {
		d.failSaveFunc(query, rows, err)
		return
	}
	if err := f.Close(); err != nil {
		d.failSaveFunc(query, rows, err)
	}
}

func (d *FileDumper) Return() (exist bool, query string, rows [][]interface{}) {
	f, err := os.Open(d.basePath)
	if err != nil {
		d.failOpenFunc(err)
		return
	}
	names, err := f.Readdirnames(-1)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		d.failOpenFunc(err)
		return
	}
	if len(names) == 0 {
		return false, "", nil
	}

	f, err = os.Open(filepath.Join(d.basePath, names[0]))
	if err != nil {
		d.failOpenFunc(err)
		return
	}
	var n int64 = 0
	err = binary.Read(f, binary.BigEndian, &n)
	if err != nil {
		d.failOpenFunc(err)
		return
	}
	buf := bytes.NewBuffer(nil)
	_, err = io.CopyN(buf, f, n)
	if err != nil {
		d.failOpenFunc(err)
		return
	}
	query = buf.String()
	err = gob.NewDecoder(f).Decode(&rows)
	if err != nil {
		d.failOpenFunc(err)
		return
	}
	err = f.Close()
	if err != nil {
		d.failOpenFunc(err)
		return
	}
	err = os.Remove(f.Name())
	if err != nil {
		d.failOpenFunc(err)
		return
	}
	return true, query, rows
}
