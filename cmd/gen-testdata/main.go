// Copyright 2025 The ndb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// gen-testdata builds a synthetic container file with a mix of small,
// chained, and subnode-bearing nodes, for exercising readers by hand.
package main

import (
	crand "crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math/rand"

	"go.uber.org/zap"

	"github.com/pstkit/ndb"
)

var (
	outPath = flag.String("o", "testdata.ndb", "output path")
	nNodes  = flag.Int("n", 256, "number of message nodes")
	large   = flag.Bool("large", true, "use the 64-bit format")
	verbose = flag.Bool("v", false, "log progress")
)

func newRand() *rand.Rand {
	var seedBytes [8]byte
	crand.Read(seedBytes[:])
	seed := int64(binary.LittleEndian.Uint64(seedBytes[:]))
	return rand.New(rand.NewSource(seed))
}

func main() {
	flag.Parse()
	rng := newRand()

	version := ndb.FormatLarge
	if !*large {
		version = ndb.FormatSmall
	}
	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			log.Fatal(err)
		}
		logger = l
	}

	b, err := ndb.NewBuilder(*outPath, version, ndb.WithBuilderLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	root := ndb.MakeNID(ndb.TypeFolder, 1)
	if err := b.AddNode(root, 0, []byte("root folder")); err != nil {
		log.Fatal(err)
	}
	for i := 0; i < *nNodes; i++ {
		nid := ndb.MakeNID(ndb.TypeMessage, uint64(i+2))
		// most nodes are small; every 16th spans multiple blocks
		size := 64 + rng.Intn(2048)
		if i%16 == 0 {
			size = 20_000 + rng.Intn(40_000)
		}
		data := make([]byte, size)
		rng.Read(data)

		var subs []ndb.SubnodeSpec
		if i%8 == 0 {
			att := make([]byte, 4096)
			rng.Read(att)
			subs = append(subs, ndb.SubnodeSpec{
				NID:  ndb.MakeNID(ndb.TypeAttachment, uint64(i+2)),
				Data: att,
			})
		}
		if err := b.AddNode(nid, root, data, subs...); err != nil {
			log.Fatal(err)
		}
	}

	f, err := b.Finalize()
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	data, err := f.ResolveNode(root)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s (%d nodes, root data %q)\n", *outPath, *nNodes+1, data)
}
