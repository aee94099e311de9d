package packager

import (
	"github.com/ipfs/go-cid"
)

// Content-addressed bundle built from one payload.
// Lives only for the duration of the probe, only derived metadata is persisted.
type ContentPackage struct {
	// Root of the UnixFS DAG
	RootCid cid.Cid

	// Every block in the archive, in write order, root first
	BlockCids []cid.Cid

	BlockCount int

	// Sum of the raw block payload sizes, without framing
	TotalBlockSize uint64

	// Piece commitment computed over the serialized archive
	PieceCid cid.Cid

	// Size of the padded piece the commitment describes
	PaddedPieceSize uint64

	// Serialized CARv1 archive
	Bytes []byte
}

func (self *ContentPackage) CarSize() int64 {
	return int64(len(self.Bytes))
}

func (self *ContentPackage) BlockCidStrings() (out []string) {
	out = make([]string, 0, len(self.BlockCids))
	for _, c := range self.BlockCids {
		out = append(out, c.String())
	}
	return
}
