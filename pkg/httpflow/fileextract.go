package httpflow

import (
	"os"
)

// ExtractedFile records one file-like multipart part staged to disk (spec's
// config key "temp directory for extracted files"). TempPath is empty when
// Config.TempDir is unset, in which case only the part's metadata and
// Size (the number of part-body bytes received) are recorded — the data itself only ever reaches callers
// through the HookRequestFileData hook.
type ExtractedFile struct {
	FieldName []byte
	Filename  []byte
	TempPath  string
	Size      int64

	file *os.File
	err  error
}

// fileExtractor stages one multipart file part to Config.TempDir as its
// bytes arrive, mirroring the header/chunked decoders' push-as-you-go
// shape rather than buffering the whole part in memory first.
type fileExtractor struct {
	dir     string
	current *ExtractedFile
}

func newFileExtractor(dir string) *fileExtractor {
	return &fileExtractor{dir: dir}
}

// begin opens a new temp file for a file-like part. If dir is empty, or
// the temp file can't be created, current still tracks the part's
// metadata with an empty TempPath — staging is best-effort and never
// blocks body parsing on a filesystem error.
func (x *fileExtractor) begin(fieldName, filename []byte) *ExtractedFile {
	ef := &ExtractedFile{
		FieldName: append([]byte(nil), fieldName...),
		Filename:  append([]byte(nil), filename...),
	}
	if x.dir != "" {
		f, err := os.CreateTemp(x.dir, "httpflow-upload-*")
		if err != nil {
			ef.err = err
		} else {
			ef.file = f
			ef.TempPath = f.Name()
		}
	}
	x.current = ef
	return ef
}

func (x *fileExtractor) write(data []byte) {
	ef := x.current
	if ef == nil {
		return
	}
	ef.Size += int64(len(data))
	if ef.file == nil || ef.err != nil {
		return
	}
	if _, err := ef.file.Write(data); err != nil {
		ef.err = err
	}
}

// end closes the temp file, if any, and returns the completed record.
func (x *fileExtractor) end() *ExtractedFile {
	ef := x.current
	x.current = nil
	if ef == nil {
		return nil
	}
	if ef.file != nil {
		if err := ef.file.Close(); err != nil && ef.err == nil {
			ef.err = err
		}
		ef.file = nil
	}
	return ef
}
