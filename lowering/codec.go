package lowering

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("lowering: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("lowering: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// EncodeLiteral serializes a literal graph with canonical CBOR. Equal
// graphs encode to identical bytes.
func EncodeLiteral(lg *LiteralGraph) ([]byte, error) {
	return cborEncMode.Marshal(lg)
}

// DecodeLiteral reverses EncodeLiteral and validates the result. Unknown
// and duplicate keys are rejected.
func DecodeLiteral(data []byte) (*LiteralGraph, error) {
	var lg LiteralGraph
	if err := cborDecMode.Unmarshal(data, &lg); err != nil {
		return nil, fmt.Errorf("lowering: unmarshal literal graph: %w", err)
	}
	if err := lg.Validate(); err != nil {
		return nil, fmt.Errorf("lowering: decoded graph: %w", err)
	}
	return &lg, nil
}
