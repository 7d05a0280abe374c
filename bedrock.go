package main

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/sirupsen/logrus"
)

// bedrockMaxTokens caps a deep-scan answer
const bedrockMaxTokens = 4096

// BedrockDeepScanSource runs deep scans against a Bedrock model instead of the
// backend. The model's output is re-framed as the backend's event stream so the
// same parser and controller serve both.
type BedrockDeepScanSource struct {
	client *bedrockruntime.Client
	model  string
	roast  func() bool
	log    *logrus.Entry
}

// Ensure BedrockDeepScanSource implements DeepScanSource
var _ DeepScanSource = (*BedrockDeepScanSource)(nil)

// NewBedrockDeepScanSource loads AWS configuration from the environment.
// roast is consulted per scan and may be nil.
func NewBedrockDeepScanSource(ctx context.Context, cfg *Config, roast func() bool, log *logrus.Logger) (*BedrockDeepScanSource, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.BedrockRegion))
	if err != nil {
		return nil, ErrBedrockConfig(err)
	}

	return &BedrockDeepScanSource{
		client: bedrockruntime.NewFromConfig(awsCfg),
		model:  cfg.BedrockModel,
		roast:  roast,
		log:    componentLogger(log, "bedrock"),
	}, nil
}

// Model returns the configured model ID
func (b *BedrockDeepScanSource) Model() string {
	return b.model
}

// OpenDeepScan starts a ConverseStream call and returns its output as event-stream lines
func (b *BedrockDeepScanSource) OpenDeepScan(ctx context.Context, req DeepScanRequest) (io.ReadCloser, error) {
	roast := b.roast != nil && b.roast()

	output, err := b.client.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId: aws.String(b.model),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: deepScanSystemPrompt(roast)},
		},
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: deepScanUserPrompt(req)},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(bedrockMaxTokens),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock converse stream: %w", err)
	}

	pr, pw := io.Pipe()
	go b.pump(output.GetStream(), pw)
	return pr, nil
}

// converseEvents is the part of the ConverseStream event stream pump reads
type converseEvents interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

// pump copies model events into pw as data frames. It stops early when the
// reader side is closed.
func (b *BedrockDeepScanSource) pump(stream converseEvents, pw *io.PipeWriter) {
	defer func() { _ = stream.Close() }()

	write := func(line string) bool {
		_, err := io.WriteString(pw, line)
		return err == nil
	}

	stopped := false
	for event := range stream.Events() {
		switch v := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			if delta, ok := v.Value.Delta.(*types.ContentBlockDeltaMemberText); ok {
				if !write(encodeFrame("token", delta.Value)) {
					_ = pw.Close()
					return
				}
			}
		case *types.ConverseStreamOutputMemberMessageStop:
			stopped = true
			b.log.WithField("stop_reason", v.Value.StopReason).Debug("model finished")
		}
	}

	if err := stream.Err(); err != nil {
		b.log.WithError(err).Warn("bedrock stream failed")
		_ = write(encodeFrame("error", "Bedrock stream failed: "+err.Error()))
		_ = pw.Close()
		return
	}
	// Without a stop event the reader sees a bare EOF and reports an early end.
	if stopped {
		_ = write(encodeFrame("done", ""))
		_ = write(framePrefix + streamEndSentinel + "\n")
	}
	_ = pw.Close()
}
