package query

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
)

// Equals builds an equals metadata filter clause.
func Equals(key string, value interface{}) brtypes.RetrievalFilter {
	return &brtypes.RetrievalFilterMemberEquals{
		Value: brtypes.FilterAttribute{
			Key:   aws.String(key),
			Value: document.NewLazyDocument(value),
		},
	}
}

// EqualsBool builds an equals clause with a boolean value.
func EqualsBool(key string, value bool) brtypes.RetrievalFilter {
	return Equals(key, value)
}

// GreaterOrEquals builds a greaterThanOrEquals metadata filter clause.
func GreaterOrEquals(key string, value float64) brtypes.RetrievalFilter {
	return &brtypes.RetrievalFilterMemberGreaterThanOrEquals{
		Value: brtypes.FilterAttribute{
			Key:   aws.String(key),
			Value: document.NewLazyDocument(value),
		},
	}
}

// AndAll combines conditions with AND semantics. Nil conditions are
// skipped; a single surviving condition is returned as-is because the
// service rejects andAll groups of one.
func AndAll(conditions ...brtypes.RetrievalFilter) brtypes.RetrievalFilter {
	kept := make([]brtypes.RetrievalFilter, 0, len(conditions))
	for _, c := range conditions {
		if c != nil {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &brtypes.RetrievalFilterMemberAndAll{Value: kept}
	}
}
