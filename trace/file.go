package trace

import (
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

// ReadFile is a wrapper for Read that takes a path instead of an
// io.Reader.  ".gz" traces are gunzipped and ".sz" traces are
// snappy-decoded on the fly.
func ReadFile(path string) (events []Event, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch {
	case fileio.DetermineType(path) == fileio.Gzip:
		if reader, err = gzip.NewReader(reader); err != nil {
			return
		}
	case strings.HasSuffix(path, ".sz"):
		reader = snappy.NewReader(reader)
	}
	return Read(reader)
}
