package store

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/zrma/go-wakeword/mfcc"
)

// Export writes a zip archive with every stored feature file and the ledger.
// An empty store yields mfcc.ErrStorage.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	entries := s.state.Load().entries
	if len(entries) == 0 {
		return errors.Wrap(mfcc.ErrStorage, "no samples to export")
	}

	ledger, err := formatLedger(entries)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	now := time.Now()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := readFile(ctx, s.files, path.Join(samplesDir, e.File))
		if err != nil {
			s.logger.WarnContext(ctx, "skip unreadable sample in export", "file", e.File, "error", err)
			continue
		}
		if err := addZipFile(zw, e.File, data, now); err != nil {
			return err
		}
	}
	if err := addZipFile(zw, ledgerFile, ledger, now); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "finish zip archive failed")
	}
	return nil
}

func addZipFile(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return errors.Wrapf(err, "create zip entry %s failed", name)
	}
	if _, err := fw.Write(data); err != nil {
		return errors.Wrapf(err, "write zip entry %s failed", name)
	}
	return nil
}
