package loro

import (
	"github.com/loro-dev/loro-go/internal/id"
)

// Fork returns an independent replica carrying this document's full
// history and state under a freshly generated peer id. The two documents
// share nothing afterwards; edits flow between them only through
// Export/Import.
func (d *Document) Fork() (*Document, error) {
	blob, err := d.Export(ExportSnapshot{})
	if err != nil {
		return nil, err
	}
	return d.forkFrom(blob)
}

// ForkAt returns an independent replica of this document as it looked at
// frontier — history above the frontier is not carried over.
func (d *Document) ForkAt(frontier id.Frontiers) (*Document, error) {
	blob, err := d.Export(ExportSnapshotAt{Frontiers: frontier})
	if err != nil {
		return nil, err
	}
	return d.forkFrom(blob)
}

func (d *Document) forkFrom(blob []byte) (*Document, error) {
	nd, err := New(Options{
		Logger:             d.logger,
		Metrics:            d.metrics,
		SigningKey:         d.signingKey,
		AllowDetachedEdits: d.allowDetachedEdits,
	})
	if err != nil {
		return nil, err
	}
	if err := nd.ImportWith(blob, "fork"); err != nil {
		return nil, err
	}
	return nd, nil
}
