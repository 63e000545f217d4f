// Package lowering turns an authored zone graph into an execution-ready one.
//
// The stages run in order and each resolves one axis:
//
//	Bind       Template    -> zcp.Zone      resources and tags bound
//	Literalize zcp.Graph   -> LiteralGraph  resolvers run once, text fixed
//	Prepare    LiteralGraph -> ReadyGraph   tokenized, tools resolved
//
// Topology never changes after the builder finalizes a graph; only the zone
// payload does. LiteralGraph holds no function values and is the form that
// is written to disk or shipped between processes.
package lowering

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("zcp.lowering")
