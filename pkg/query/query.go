// Package query runs retrieval-augmented questions against a provisioned
// knowledge base, with optional metadata filtering and scripted scenario
// suites for validating a deployment end to end.
package query

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/rs/zerolog"

	"github.com/kbforge/kbforge/pkg/config"
	"github.com/kbforge/kbforge/pkg/engine"
)

// maxReferencePreviewLength bounds the cited passage excerpt, in runes.
const maxReferencePreviewLength = 120

// RuntimeAPI is the slice of the Bedrock agent runtime API the client uses.
type RuntimeAPI interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// Citation is one cited source passage backing an answer.
type Citation struct {
	URI     string
	Preview string
}

// Answer is the generated response with its cited sources.
type Answer struct {
	Text      string
	Citations []Citation
}

// Options tunes a single question.
type Options struct {
	// Filter restricts retrieval by document metadata. Nil means no filter.
	Filter brtypes.RetrievalFilter

	// NumberOfResults is how many passages to retrieve. Zero means the
	// default of 4.
	NumberOfResults int32

	// SearchType overrides the retrieval search type (for example HYBRID).
	// Empty keeps the service default.
	SearchType string
}

// Client answers questions against a knowledge base.
type Client struct {
	runtime  RuntimeAPI
	settings *config.Settings
	log      zerolog.Logger
}

// NewClient creates a query client.
func NewClient(runtime RuntimeAPI, settings *config.Settings, log zerolog.Logger) (*Client, error) {
	if runtime == nil {
		return nil, fmt.Errorf("runtime client is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	return &Client{runtime: runtime, settings: settings, log: log}, nil
}

// Ask runs a single retrieve-and-generate request and returns the answer
// with citation previews.
func (c *Client) Ask(ctx context.Context, question string, opts Options) (*Answer, error) {
	kbID := c.settings.KnowledgeBaseID
	if kbID == "" {
		return nil, engine.NewMisconfiguredError("knowledge_base_id must be configured before querying")
	}

	numberOfResults := opts.NumberOfResults
	if numberOfResults == 0 {
		numberOfResults = 4
	}

	vectorConfig := &brtypes.KnowledgeBaseVectorSearchConfiguration{
		NumberOfResults: aws.Int32(numberOfResults),
	}
	if opts.Filter != nil {
		vectorConfig.Filter = opts.Filter
	}
	if opts.SearchType != "" {
		vectorConfig.OverrideSearchType = brtypes.SearchType(opts.SearchType)
	}

	c.log.Debug().
		Str("knowledge_base_id", kbID).
		Int32("number_of_results", numberOfResults).
		Msg("running retrieve-and-generate request")

	out, err := c.runtime.RetrieveAndGenerate(ctx, &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &brtypes.RetrieveAndGenerateInput{
			Text: aws.String(question),
		},
		RetrieveAndGenerateConfiguration: &brtypes.RetrieveAndGenerateConfiguration{
			Type: brtypes.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &brtypes.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(kbID),
				ModelArn:        aws.String(c.settings.ResponseModelARN),
				RetrievalConfiguration: &brtypes.KnowledgeBaseRetrievalConfiguration{
					VectorSearchConfiguration: vectorConfig,
				},
			},
		},
	})
	if err != nil {
		return nil, engine.Classify(err).WithOp("retrieve and generate")
	}

	return answerFromSDK(out), nil
}

func answerFromSDK(out *bedrockagentruntime.RetrieveAndGenerateOutput) *Answer {
	answer := &Answer{Text: "(no answer)"}
	if out.Output != nil && aws.ToString(out.Output.Text) != "" {
		answer.Text = aws.ToString(out.Output.Text)
	}

	for _, citation := range out.Citations {
		for _, ref := range citation.RetrievedReferences {
			var text, uri string
			if ref.Content != nil {
				text = aws.ToString(ref.Content.Text)
			}
			if ref.Location != nil && ref.Location.S3Location != nil {
				uri = aws.ToString(ref.Location.S3Location.Uri)
			}
			answer.Citations = append(answer.Citations, Citation{
				URI:     uri,
				Preview: previewText(text),
			})
		}
	}
	return answer
}

// previewText truncates a cited passage to the preview length, counted in
// runes so multibyte text is not split.
func previewText(text string) string {
	runes := []rune(text)
	if len(runes) <= maxReferencePreviewLength {
		return text
	}
	return string(runes[:maxReferencePreviewLength]) + "…"
}
