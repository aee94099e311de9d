package main

// Dev tool. Plays a whole storage provider plus the indexing network's find
// API in one process, so the probe can be run locally end to end:
//
//	go run ./tools/fakeprovider -listen :9999 -advertise-delay 10s
//
// Point both the provider roster and the indexer URL at it.

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/filstation/spprobe/src/utils/indexer"
	"github.com/filstation/spprobe/src/utils/provider"

	carv2 "github.com/ipld/go-car/v2"
)

type deal struct {
	request  provider.CreateDealRequest
	payload  []byte
	uploaded bool
}

type piece struct {
	carBytes   []byte
	uploadedAt time.Time
}

type server struct {
	mtx            sync.Mutex
	deals          map[string]*deal
	pieces         map[string]*piece
	blocks         map[string][]byte
	advertiseDelay time.Duration
}

func main() {
	listen := flag.String("listen", ":9999", "listen address")
	advertiseDelay := flag.Duration("advertise-delay", 10*time.Second, "time between indexing and advertising a piece")
	flag.Parse()

	self := &server{
		deals:          make(map[string]*deal),
		pieces:         make(map[string]*piece),
		blocks:         make(map[string][]byte),
		advertiseDelay: *advertiseDelay,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/deals", self.createDeal)
	mux.HandleFunc("PUT /api/v1/deals/{id}/payload", self.uploadPayload)
	mux.HandleFunc("GET /api/v1/deals/{id}", self.getDeal)
	mux.HandleFunc("GET /api/v1/deals/{id}/payload", self.getPayload)
	mux.HandleFunc("GET /api/v1/pieces/{pieceCid}/status", self.getPieceStatus)
	mux.HandleFunc("GET /piece/{pieceCid}", self.getPiece)
	mux.HandleFunc("GET /ipfs/{cid}", self.getBlock)
	mux.HandleFunc("HEAD /piece/{pieceCid}", self.getPiece)
	mux.HandleFunc("HEAD /ipfs/{cid}", self.getBlock)
	mux.HandleFunc("GET /cid/{cid}", self.findCid)

	log.Printf("fake provider listening on %s, advertise delay %s", *listen, *advertiseDelay)
	log.Fatal(http.ListenAndServe(*listen, mux))
}

func (self *server) createDeal(w http.ResponseWriter, r *http.Request) {
	var request provider.CreateDealRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.DealId == "" {
		request.DealId = fmt.Sprintf("fake-%d", time.Now().UnixNano())
	}

	self.mtx.Lock()
	self.deals[request.DealId] = &deal{request: request}
	self.mtx.Unlock()

	log.Printf("deal %s created, services %v", request.DealId, request.ServiceTypes)
	writeJson(w, &provider.CreateDealResponse{DealId: request.DealId, Status: provider.DealStateAccepted})
}

func (self *server) uploadPayload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	self.mtx.Lock()
	defer self.mtx.Unlock()

	d, ok := self.deals[r.PathValue("id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	d.payload = body
	d.uploaded = true

	if r.Header.Get("Content-Type") != provider.ContentTypeCar {
		log.Printf("deal %s got %d plain bytes", d.request.DealId, len(body))
		return
	}

	// Index every block of the archive so retrievals and find lookups work
	reader, err := carv2.NewBlockReader(bytes.NewReader(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	count := 0
	for {
		block, e := reader.Next()
		if e == io.EOF {
			break
		}
		if e != nil {
			http.Error(w, e.Error(), http.StatusBadRequest)
			return
		}
		self.blocks[block.Cid().String()] = block.RawData()
		count++
	}
	if d.request.PieceCid != "" {
		self.pieces[d.request.PieceCid] = &piece{carBytes: body, uploadedAt: time.Now()}
	}
	log.Printf("deal %s got a %d byte archive with %d blocks, piece %s", d.request.DealId, len(body), count, d.request.PieceCid)
}

func (self *server) getDeal(w http.ResponseWriter, r *http.Request) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	d, ok := self.deals[r.PathValue("id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	status := provider.DealStateAccepted
	if d.uploaded {
		status = provider.DealStateStored
	}
	writeJson(w, &provider.DealStatusResponse{DealId: d.request.DealId, Status: status})
}

func (self *server) getPayload(w http.ResponseWriter, r *http.Request) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	d, ok := self.deals[r.PathValue("id")]
	if !ok || !d.uploaded {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", provider.ContentTypeOctetStream)
	_, _ = w.Write(d.payload)
}

func (self *server) getPieceStatus(w http.ResponseWriter, r *http.Request) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	p, ok := self.pieces[r.PathValue("pieceCid")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJson(w, &provider.PieceStatusResponse{
		PieceCid:   r.PathValue("pieceCid"),
		Status:     "indexed",
		Indexed:    true,
		Advertised: time.Since(p.uploadedAt) >= self.advertiseDelay,
	})
}

func (self *server) getPiece(w http.ResponseWriter, r *http.Request) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	p, ok := self.pieces[r.PathValue("pieceCid")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", provider.ContentTypeCar)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(p.carBytes)
}

func (self *server) getBlock(w http.ResponseWriter, r *http.Request) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	data, ok := self.blocks[r.PathValue("cid")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", provider.ContentTypeIpldRaw)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}

// Find endpoint of the indexing network, answers for advertised pieces only
func (self *server) findCid(w http.ResponseWriter, r *http.Request) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	c := r.PathValue("cid")
	if _, ok := self.blocks[c]; !ok {
		http.NotFound(w, r)
		return
	}

	advertised := false
	for _, p := range self.pieces {
		if time.Since(p.uploadedAt) >= self.advertiseDelay {
			advertised = true
			break
		}
	}
	if !advertised {
		http.NotFound(w, r)
		return
	}

	writeJson(w, &indexer.FindResponse{
		MultihashResults: []indexer.MultihashResult{{
			Multihash: c,
			ProviderResults: []indexer.ProviderResult{{
				ContextID: "fake-provider",
				Provider: indexer.AddrInfo{
					ID:    "12D3KooWFakeProvider",
					Addrs: []string{"/ip4/127.0.0.1/tcp/9999/http"},
				},
			}},
		}},
	})
}

func writeJson(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("response write failed: %v", err)
	}
}
