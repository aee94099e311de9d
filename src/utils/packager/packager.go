package packager

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"

	commcid "github.com/filecoin-project/go-fil-commcid"
	commp "github.com/filecoin-project/go-fil-commp-hashhash"
	"github.com/ipfs/boxo/blockservice"
	"github.com/ipfs/boxo/blockstore"
	chunk "github.com/ipfs/boxo/chunker"
	offline "github.com/ipfs/boxo/exchange/offline"
	"github.com/ipfs/boxo/ipld/merkledag"
	"github.com/ipfs/boxo/ipld/unixfs/importer/balanced"
	ihelper "github.com/ipfs/boxo/ipld/unixfs/importer/helpers"
	"github.com/ipfs/go-cid"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	ipldformat "github.com/ipfs/go-ipld-format"
	"github.com/ipld/go-car"
	carv2 "github.com/ipld/go-car/v2"
	mh "github.com/multiformats/go-multihash"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Builds content-addressed archives out of probe payloads and
// proves they decode back to the original content.
type Packager struct {
	config *config.Config
	log    *logrus.Entry
}

func NewPackager(config *config.Config) (self *Packager) {
	self = new(Packager)
	self.config = config
	self.log = logger.NewSublogger("packager")
	return
}

// Converts the payload into a UnixFS DAG serialized as a CARv1 archive.
// The payload goes through a scratch file first, removed on every exit path.
func (self *Packager) Build(ctx context.Context, fileName string, payload []byte) (pkg *ContentPackage, err error) {
	scratch, err := os.MkdirTemp(self.config.Packager.ScratchDir, "spprobe-build-")
	if err != nil {
		err = xerrors.Errorf("failed to create scratch dir: %w", err)
		return
	}
	defer os.RemoveAll(scratch)

	path := filepath.Join(scratch, fileName)
	err = os.WriteFile(path, payload, 0644)
	if err != nil {
		err = xerrors.Errorf("failed to write scratch file: %w", err)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	return self.buildFromReader(ctx, file)
}

func (self *Packager) buildFromReader(ctx context.Context, input io.Reader) (pkg *ContentPackage, err error) {
	_, dagService := newMemoryDag()

	root, err := self.importDag(ctx, input, dagService)
	if err != nil {
		err = xerrors.Errorf("failed to build DAG: %w", err)
		return
	}

	// Serialize the whole DAG into one CARv1 archive
	var buf bytes.Buffer
	err = car.WriteCar(ctx, dagService, []cid.Cid{root}, &buf)
	if err != nil {
		err = xerrors.Errorf("failed to serialize archive: %w", err)
		return
	}

	pkg = &ContentPackage{
		RootCid: root,
		Bytes:   buf.Bytes(),
	}

	// Enumerate blocks in write order
	reader, err := carv2.NewBlockReader(bytes.NewReader(pkg.Bytes))
	if err != nil {
		err = xerrors.Errorf("failed to reopen archive: %w", err)
		return
	}
	for {
		block, e := reader.Next()
		if e == io.EOF {
			break
		}
		if e != nil {
			err = xerrors.Errorf("failed to enumerate blocks: %w", e)
			return
		}
		pkg.BlockCids = append(pkg.BlockCids, block.Cid())
		pkg.TotalBlockSize += uint64(len(block.RawData()))
	}
	pkg.BlockCount = len(pkg.BlockCids)

	// Piece commitment over the serialized archive
	calc := new(commp.Calc)
	_, err = io.Copy(calc, bytes.NewReader(pkg.Bytes))
	if err != nil {
		err = xerrors.Errorf("failed to digest archive: %w", err)
		return
	}
	digest, paddedSize, err := calc.Digest()
	if err != nil {
		err = xerrors.Errorf("failed to compute piece commitment: %w", err)
		return
	}
	pkg.PieceCid, err = commcid.DataCommitmentV1ToCID(digest)
	if err != nil {
		err = xerrors.Errorf("failed to convert piece commitment: %w", err)
		return
	}
	pkg.PaddedPieceSize = paddedSize

	self.log.WithField("root", pkg.RootCid.String()).
		WithField("piece", pkg.PieceCid.String()).
		WithField("blocks", pkg.BlockCount).
		Debug("Built content package")

	return
}

// Chunks the input and lays it out as a balanced UnixFS DAG with raw leaves
func (self *Packager) importDag(ctx context.Context, input io.Reader, dagService ipldformat.DAGService) (root cid.Cid, err error) {
	prefix, err := merkledag.PrefixForCidVersion(1)
	if err != nil {
		return
	}
	prefix.MhType = uint64(mh.SHA2_256)

	maxLinks := self.config.Packager.MaxLinks
	if maxLinks <= 0 {
		maxLinks = ihelper.DefaultLinksPerBlock
	}

	bufferedDag := ipldformat.NewBufferedDAG(ctx, dagService)
	params := ihelper.DagBuilderParams{
		Maxlinks:   maxLinks,
		RawLeaves:  true,
		CidBuilder: prefix,
		Dagserv:    bufferedDag,
	}

	builder, err := params.New(chunk.NewSizeSplitter(input, self.config.Packager.ChunkSize))
	if err != nil {
		return
	}

	node, err := balanced.Layout(builder)
	if err != nil {
		return
	}

	err = bufferedDag.Commit()
	if err != nil {
		return
	}

	return node.Cid(), nil
}

func newMemoryDag() (blockstore.Blockstore, ipldformat.DAGService) {
	bs := blockstore.NewBlockstore(dssync.MutexWrap(ds.NewMapDatastore()))
	return bs, merkledag.NewDAGService(blockservice.New(bs, offline.Exchange(bs)))
}
