package dagapi

import (
	_ "github.com/ipld/go-ipld-prime/codec/json" // side-effecting import; registers a codec.
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/ipld/go-ipld-prime/schema"
)

// This file is for IPLD-related helpers and constants.

var LinkSystem = cidlink.DefaultLinkSystem()

// TypeSystem describes the serial API data types and their representation
// strategies in IPLD Schema form. Types are accumulated into it by init
// functions next to each type declaration in this package.
var TypeSystem = func() *schema.TypeSystem {
	ts := &schema.TypeSystem{}
	ts.Init()
	return ts
}()
