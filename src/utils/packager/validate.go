package packager

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/ipfs/boxo/files"
	unixfile "github.com/ipfs/boxo/ipld/unixfs/file"
	carv2 "github.com/ipld/go-car/v2"
	"github.com/multiformats/go-multicodec"
)

// Distinct failure reasons reported by Validate
const (
	ReasonRootCidMismatch    = "root-cid-mismatch"
	ReasonRebuiltCidMismatch = "rebuilt-cid-mismatch"
	ReasonNoFilesExtracted   = "no-files-extracted"
	ReasonUnknownCodec       = "unknown-codec"
	ReasonUnpackError        = "unpack-error"
	ReasonRebuildError       = "rebuild-error"
)

type ValidationResult struct {
	Valid          bool
	Reasons        []string
	FilesExtracted int
	DeclaredRoot   string
	RebuiltRoot    string
}

func (self *ValidationResult) addReason(reason string) {
	for _, r := range self.Reasons {
		if r == reason {
			return
		}
	}
	self.Reasons = append(self.Reasons, reason)
}

// Full round trip over the archive, not a trust-the-embedded-root check.
// Unpacks the archive, reconstructs the original file, rebuilds the DAG
// from the reconstruction and requires both the declared and the rebuilt
// root to match the expected one. Collects every distinct failure instead
// of stopping at the first.
func (self *Packager) Validate(ctx context.Context, carBytes []byte, expectedRoot string) (result *ValidationResult) {
	result = new(ValidationResult)
	defer func() { result.Valid = len(result.Reasons) == 0 }()

	bs, dagService := newMemoryDag()

	reader, err := carv2.NewBlockReader(bytes.NewReader(carBytes))
	if err != nil {
		self.log.WithError(err).Debug("Archive header unreadable")
		result.addReason(ReasonUnpackError)
		return
	}
	if len(reader.Roots) != 1 {
		result.addReason(ReasonUnpackError)
		return
	}

	declaredRoot := reader.Roots[0]
	result.DeclaredRoot = declaredRoot.String()
	if declaredRoot.String() != expectedRoot {
		result.addReason(ReasonRootCidMismatch)
	}

	// Load blocks into a scratch store, re-hashing each one.
	// A block whose data doesn't match its CID never enters the store.
	for {
		block, e := reader.Next()
		if e == io.EOF {
			break
		}
		if e != nil {
			self.log.WithError(e).Debug("Archive block unreadable")
			result.addReason(ReasonUnpackError)
			break
		}

		chk, e := block.Cid().Prefix().Sum(block.RawData())
		if e != nil || !chk.Equals(block.Cid()) {
			result.addReason(ReasonUnpackError)
			continue
		}

		// Our archives hold raw leaves and dag-pb nodes, nothing else
		switch multicodec.Code(block.Cid().Type()) {
		case multicodec.Raw, multicodec.DagPb:
		default:
			result.addReason(ReasonUnknownCodec)
			continue
		}

		e = bs.Put(ctx, block)
		if e != nil {
			result.addReason(ReasonUnpackError)
		}
	}

	scratch, err := os.MkdirTemp(self.config.Packager.ScratchDir, "spprobe-validate-")
	if err != nil {
		result.addReason(ReasonUnpackError)
		return
	}
	defer os.RemoveAll(scratch)

	// Reconstruct the content at the declared root
	node, err := dagService.Get(ctx, declaredRoot)
	if err != nil {
		result.addReason(ReasonUnpackError)
		return
	}

	unixNode, err := unixfile.NewUnixfsFile(ctx, dagService, node)
	if err != nil {
		result.addReason(ReasonUnpackError)
		return
	}

	extracted, err := writeNode(unixNode, filepath.Join(scratch, "out"))
	if err != nil {
		result.addReason(ReasonUnpackError)
		return
	}
	result.FilesExtracted = len(extracted)
	if len(extracted) == 0 {
		result.addReason(ReasonNoFilesExtracted)
		return
	}

	// Rebuild from the reconstructed file, an independently computed root
	file, err := os.Open(extracted[0])
	if err != nil {
		result.addReason(ReasonRebuildError)
		return
	}
	defer file.Close()

	rebuilt, err := self.buildFromReader(ctx, file)
	if err != nil {
		self.log.WithError(err).Debug("Rebuild failed")
		result.addReason(ReasonRebuildError)
		return
	}
	result.RebuiltRoot = rebuilt.RootCid.String()

	if rebuilt.RootCid.String() != expectedRoot {
		result.addReason(ReasonRebuiltCidMismatch)
	}

	return
}

// Writes leaf files to disk, recursing into directory entries.
// Returns the paths of the extracted files in DAG order.
func writeNode(node files.Node, path string) (extracted []string, err error) {
	switch node := node.(type) {
	case files.Directory:
		err = os.MkdirAll(path, 0755)
		if err != nil {
			return
		}
		it := node.Entries()
		for it.Next() {
			var children []string
			children, err = writeNode(it.Node(), filepath.Join(path, it.Name()))
			if err != nil {
				return
			}
			extracted = append(extracted, children...)
		}
		err = it.Err()
	case files.File:
		var out *os.File
		out, err = os.Create(path)
		if err != nil {
			return
		}
		defer out.Close()
		_, err = io.Copy(out, node)
		if err != nil {
			return
		}
		extracted = append(extracted, path)
	}
	return
}
